package iso7816

import (
	"fmt"
)

// C-APDU = CLA INS P1 P2 [Lc Data] [Le]  (ISO/IEC 7816-3 §12.1)
//
//	case 1  header only
//	case 2  header | Le
//	case 3  header | Lc | Data
//	case 4  header | Lc | Data | Le
//
// Lengths are short (1 byte, Le 00 = 256) unless Nc > 255 or Ne > 256, in which case both
// switch to the extended form (00 | 2 bytes). Calypso only ever emits short APDUs.
//
// R-APDU = [Data] SW1 SW2

const (
	MaxShortLc = 255
	// MaxShortLe is encoded as Le = 00.
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	// MaxExtendedLe is encoded as Le = 00 00.
	MaxExtendedLe = 65536
)

// CommandAPDU is a command to a card. Ne is the expected response length, 0 for none.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int
}

func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Instruction: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Case returns the ISO 7816-3 case number of the command.
func (c *CommandAPDU) Case() int {
	switch {
	case len(c.Data) == 0 && c.Ne == 0:
		return 1
	case len(c.Data) == 0:
		return 2
	case c.Ne == 0:
		return 3
	default:
		return 4
	}
}

// Bytes encodes the command, picking short or extended lengths.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, fmt.Errorf("data field too long: %d bytes", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, fmt.Errorf("invalid expected length: %d", ne)
	}

	cla, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}

	out := make([]byte, 0, 4+3+nc+3)
	out = append(out, cla, byte(c.Instruction.Raw), c.P1, c.P2)

	extended := nc > MaxShortLc || ne > MaxShortLe
	if nc > 0 {
		out = appendLc(out, nc, extended)
		out = append(out, c.Data...)
	}
	if ne > 0 {
		out = appendLe(out, ne, extended, nc == 0)
	}
	return out, nil
}

func appendLc(out []byte, nc int, extended bool) []byte {
	if !extended {
		return append(out, byte(nc))
	}
	return append(out, 0x00, byte(nc>>8), byte(nc))
}

// appendLe writes Le; a case 2 extended Le carries its own 00 marker.
func appendLe(out []byte, ne int, extended, noData bool) []byte {
	if !extended {
		return append(out, byte(ne%MaxShortLe))
	}
	if noData {
		out = append(out, 0x00)
	}
	ne %= MaxExtendedLe
	return append(out, byte(ne>>8), byte(ne))
}

// ParseCommandAPDU decodes a short C-APDU, as received by a card. Extended lengths are
// rejected.
func ParseCommandAPDU(raw []byte) (*CommandAPDU, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("command too short: length %d", len(raw))
	}

	cla, err := NewClass(raw[0])
	if err != nil {
		return nil, err
	}
	ins, err := NewInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, err
	}

	cmd := &CommandAPDU{Class: cla, Instruction: ins, P1: raw[2], P2: raw[3]}
	body := raw[4:]
	if len(body) == 0 {
		return cmd, nil
	}
	if len(body) == 1 {
		cmd.Ne = neFromLe(body[0])
		return cmd, nil
	}

	lc := int(body[0])
	switch {
	case lc == 0:
		return nil, fmt.Errorf("extended length commands are not supported")
	case len(body) == 1+lc:
		cmd.Data = body[1:]
	case len(body) == 2+lc:
		cmd.Data = body[1 : 1+lc]
		cmd.Ne = neFromLe(body[1+lc])
	default:
		return nil, fmt.Errorf("inconsistent Lc %d for body of %d bytes", lc, len(body))
	}
	return cmd, nil
}

func neFromLe(le byte) int {
	if le == 0x00 {
		return MaxShortLe
	}
	return int(le)
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is a card reply.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into data and status word. Data is copied.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}
	n := len(raw) - 2
	return &ResponseAPDU{
		Data:   append([]byte(nil), raw[:n]...),
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

// Bytes encodes the response as it travels on the wire.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
