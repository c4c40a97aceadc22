package iso7816

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/bits"
)

// CLA byte (ISO/IEC 7816-4 §5.4.1):
//
//	1xxx xxxx  proprietary, no further structure
//	000c ssnn  first interindustry: chaining c, secure messaging ss, channel nn (0-3)
//	01sc nnnn  further interindustry: SM flag s, chaining c, channel nnnn+4 (4-19)
//
// Calypso uses the interindustry 00 and two proprietary classes.
const (
	ClaISO           byte = 0x00
	ClaCalypsoSAM    byte = 0x80
	ClaCalypsoLegacy byte = 0x94

	claReserved       byte = 0xFF
	firstFurtherChann      = 4
)

// SecureMessaging is the SM indication of an interindustry class.
type SecureMessaging int

const (
	SMNone SecureMessaging = iota
	// SMProprietary only exists in the first interindustry range.
	SMProprietary
	// SMHeaderNoProc is ISO SM with the header not processed.
	SMHeaderNoProc
	// SMHeaderAuth is ISO SM with an authenticated header (first range only).
	SMHeaderAuth
)

var smNames = [...]string{"None", "Proprietary", "ISO (Header not processed)", "ISO (Header authenticated)"}

func (sm SecureMessaging) String() string {
	if sm >= 0 && int(sm) < len(smNames) {
		return smNames[sm]
	}
	return "Unknown"
}

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes cla. 0xFF is reserved (PPS) and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == claReserved {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{Raw: cla, IsProprietary: bits.IsSet(cla, 8)}
	if c.IsProprietary {
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	if bits.IsSet(cla, 7) {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + firstFurtherChann
	} else {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	}
	return c, nil
}

// MustClass is NewClass for constant class tables; it panics on 0xFF.
func MustClass(cla byte) Class {
	c, err := NewClass(cla)
	if err != nil {
		panic(err)
	}
	return c
}

// Byte returns the encoded CLA byte, or 0xFF when Encode fails.
func (c Class) Byte() byte {
	b, err := c.Encode()
	if err != nil {
		return claReserved
	}
	return b
}

// Encode rebuilds the CLA byte from the decoded fields.
func (c Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 15+firstFurtherChann {
		return 0, fmt.Errorf("logical channel %d out of range", c.Channel)
	}

	var b byte
	if c.IsChained {
		b = bits.Set(b, 5)
	}

	if c.Channel < firstFurtherChann {
		b = bits.PutRange(b, 4, 3, byte(c.SecureMessaging))
		return bits.PutRange(b, 2, 1, c.Channel), nil
	}

	b = bits.Set(b, 7)
	if c.SecureMessaging != SMNone {
		b = bits.Set(b, 6)
	}
	return bits.PutRange(b, 4, 1, c.Channel-firstFurtherChann), nil
}

// Verbose describes the class for reports.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}

	rangeName := "First Interindustry (Ch 0-3)"
	if c.Channel >= firstFurtherChann {
		rangeName = "Further Interindustry (Ch 4-19)"
	}
	chaining := "Last or only command"
	if c.IsChained {
		chaining = "More commands follow (Chaining)"
	}

	return fmt.Sprintf("Range: %s\nChaining: %s\nSecure Messaging: %s\nLogical Channel: %d",
		rangeName, chaining, c.SecureMessaging, c.Channel)
}
