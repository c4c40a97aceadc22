package cardsim

import (
	"bytes"
	"crypto/rand"
	"io"

	"github.com/gregLibert/calypso-session/pkg/calypso"
	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

const (
	insSelectDiversifier = 0x14
	insGetChallenge      = 0x84
	insDigestInit        = 0x8A
	insDigestUpdate      = 0x8C
	insDigestClose       = 0x8E
	insDigestAuth        = 0x82
)

var samSubtypes = map[calypso.SamRevision]byte{
	calypso.SamRevisionC1:  0xC1,
	calypso.SamRevisionS1D: 0xD1,
	calypso.SamRevisionS1E: 0xE1,
}

// SAM is a simulated Calypso SAM. Digest Update with P1 = 80 is read as Digest Update
// Multiple; encrypted sessions are not simulated.
type SAM struct {
	recorder

	Revision calypso.SamRevision
	Master   []byte
	Serial   []byte
	Rand     io.Reader

	diversifier []byte
	challenge   []byte

	digestOpen bool
	closed     bool
	sigLen     int
	key        []byte
	transcript [][]byte
}

// NewSAM returns a SAM of revision rev sharing master with the cards it serves.
func NewSAM(rev calypso.SamRevision, master []byte) *SAM {
	return &SAM{
		Revision: rev,
		Master:   master,
		Serial:   []byte{0x11, 0x22, 0x33, 0x44},
		Rand:     rand.Reader,
	}
}

// ATR returns a Calypso SAM answer-to-reset encoding the revision and serial number.
func (s *SAM) ATR() ([]byte, error) {
	atr := []byte{0x3B, 0x3F, 0x96, 0x00, 0x80, 0x5A, 0x00, 0x80, samSubtypes[s.Revision], 0x20, 0x00, 0x00}
	atr = append(atr, s.Serial...)
	return append(atr, 0x82, 0x90, 0x00), nil
}

// Transmit implements iso7816.Transmitter.
func (s *SAM) Transmit(raw []byte) ([]byte, error) {
	return s.transmit(raw, s.handle)
}

func (s *SAM) handle(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	cla, err := calypso.SamClass(s.Revision)
	if err != nil || cmd.Class.Raw != cla.Byte() {
		return status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}

	switch byte(cmd.Instruction.Raw) {
	case insSelectDiversifier:
		if n := len(cmd.Data); n != 4 && n != 8 {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		if s.digestOpen {
			return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
		}
		s.diversifier = append([]byte(nil), cmd.Data...)
		return success(nil)
	case insGetChallenge:
		if cmd.Ne != 4 && cmd.Ne != 8 {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		s.challenge = make([]byte, cmd.Ne)
		if _, err := io.ReadFull(s.Rand, s.challenge); err != nil {
			return status(iso7816.SW_ERR_EXEC_NO_INFO)
		}
		return success(append([]byte(nil), s.challenge...))
	case insDigestInit:
		return s.digestInit(cmd)
	case insDigestUpdate:
		return s.digestUpdate(cmd)
	case insDigestClose:
		if !s.digestOpen || s.closed {
			return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
		}
		if cmd.Ne != s.sigLen {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		s.closed = true
		return success(signature(s.key, terminalHalf, s.transcript, s.sigLen))
	case insDigestAuth:
		if !s.closed {
			return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
		}
		s.digestOpen, s.closed = false, false
		if !bytes.Equal(cmd.Data, signature(s.key, cardHalf, s.transcript, s.sigLen)) {
			return status(iso7816.SW_ERR_SM_OBJ_INCORRECT)
		}
		return success(nil)
	}
	return status(iso7816.SW_ERR_INS_INVALID)
}

func (s *SAM) digestInit(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if s.diversifier == nil {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	open := cmd.Data
	if cmd.P2 == 0xFF {
		if len(open) < 3 {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		open = open[2:]
	}

	s.sigLen = 4
	if cmd.P1&0x02 != 0 {
		s.sigLen = 8
	}
	s.key = sessionKey(s.Master, s.diversifier)
	s.transcript = [][]byte{append([]byte(nil), open...)}
	s.digestOpen, s.closed = true, false
	return success(nil)
}

func (s *SAM) digestUpdate(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if !s.digestOpen || s.closed {
		return status(iso7816.SW_ERR_COND_OF_USE_NOT_SAT)
	}
	if cmd.P1 != 0x80 {
		s.transcript = append(s.transcript, append([]byte(nil), cmd.Data...))
		return success(nil)
	}

	data := cmd.Data
	var items [][]byte
	for len(data) > 0 {
		l := int(data[0])
		if l == 0 || 1+l > len(data) {
			return status(iso7816.SW_ERR_WRONG_LENGTH)
		}
		items = append(items, append([]byte(nil), data[1:1+l]...))
		data = data[1+l:]
	}
	s.transcript = append(s.transcript, items...)
	return success(nil)
}
