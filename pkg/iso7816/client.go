package iso7816

import (
	"fmt"
	"log/slog"
)

// Client drives a card over a Transmitter and absorbs the two T=0 procedure answers that
// ISO 7816-3 leaves to the terminal:
//
//   - 61XX: XX bytes are pending; the client fetches them with GET RESPONSE.
//   - 6CXX: Le was wrong; the client re-issues the same command with Le = XX.
//
// Send returns every exchange it performed as a Trace. Transmission failures are returned
// as they are; retrying belongs to the Transmitter.
type Client struct {
	Card Transmitter

	// Name labels the endpoint in log records ("po", "sam").
	Name   string
	Logger *slog.Logger
}

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// maxFollowUps bounds the 61XX/6CXX follow-ups of one logical command.
const maxFollowUps = 8

func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// NewNamedClient creates a Client whose exchanges are logged at debug level under name.
func NewNamedClient(card Transmitter, name string, logger *slog.Logger) *Client {
	return &Client{Card: card, Name: name, Logger: logger}
}

// Send transmits cmd and follows 61XX and 6CXX answers until the card returns a final
// status. On error the trace holds the exchanges completed so far.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	for next := cmd; next != nil; {
		if len(trace) > maxFollowUps {
			return trace, fmt.Errorf("too many chained responses (%d)", len(trace))
		}

		resp, err := c.transmit(next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: next, Response: resp})
		next = followUp(next, resp.Status)
	}
	return trace, nil
}

func (c *Client) transmit(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Debug("apdu", "endpoint", c.Name, "c-apdu", fmt.Sprintf("%X", raw), "r-apdu", fmt.Sprintf("%X", rawResp))
	}
	return ParseResponseAPDU(rawResp)
}

// followUp returns the command a procedure status calls for, or nil when sw is final.
func followUp(cmd *CommandAPDU, sw StatusWord) *CommandAPDU {
	ne := int(sw.SW2())
	if ne == 0 {
		ne = MaxShortLe
	}

	switch sw.SW1() {
	case 0x61:
		// GET RESPONSE stays on the channel of the original command.
		cls := cmd.Class
		cls.IsChained = false
		return NewCommandAPDU(cls, MustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, ne)
	case 0x6C:
		again := *cmd
		again.Ne = ne
		return &again
	default:
		return nil
	}
}
