// Package reader connects secure element channels to PC/SC readers.
package reader

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

// ErrNotConnected is returned by a closed or zero Connection.
var ErrNotConnected = errors.New("connection not established")

// Connection wraps a PC/SC card connection. It implements iso7816.Transmitter and
// session.ATRProvider.
type Connection struct {
	ctx       *scard.Context
	Card      *scard.Card
	Reader    string
	ReaderIdx int
}

// List returns the names of the readers known to the PC/SC service.
func List() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

// Connect opens the card present in reader readerIndex (0-based).
func Connect(readerIndex int) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("reader index %d out of range (0..%d)", readerIndex, len(readers)-1)
	}

	name := readers[readerIndex]
	// T=0 or T=1 only, some drivers reject ProtocolAny with "Parameter Incorrect".
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("connect to %q: %w", name, err)
	}

	return &Connection{
		ctx:       ctx,
		Card:      card,
		Reader:    name,
		ReaderIdx: readerIndex,
	}, nil
}

// Transmit sends one APDU and returns the raw response.
func (c *Connection) Transmit(apdu []byte) ([]byte, error) {
	if c == nil || c.Card == nil {
		return nil, ErrNotConnected
	}
	return c.Card.Transmit(apdu)
}

// ATR returns the answer-to-reset of the connected card.
func (c *Connection) ATR() ([]byte, error) {
	if c == nil || c.Card == nil {
		return nil, ErrNotConnected
	}
	st, err := c.Card.Status()
	if err != nil {
		return nil, fmt.Errorf("card status: %w", err)
	}
	return st.Atr, nil
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Card != nil {
		if err := c.Card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
		c.Card = nil
	}
	if c.ctx != nil {
		if err := c.ctx.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release context: %w", err))
		}
		c.ctx = nil
	}
	return errors.Join(errs...)
}
