package iso7816

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/bits"
)

// The INS byte names the command. Under the interindustry class, bit 1 set marks a BER-TLV
// data field (B0 READ BINARY vs B1). Values 6X and 9X are never valid: ISO 7816-3 keeps
// them for procedure bytes.
//
// Proprietary classes give INS values their own meaning (a Calypso SAM reads 0x8A as
// DIGEST INIT), so the names below only describe the interindustry commands.

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Standard Instruction (INS) codes as defined in ISO/IEC 7816-4.
const (
	INS_VERIFY                InsCode = 0x20
	INS_EXTERNAL_AUTHENTICATE InsCode = 0x82
	INS_GET_CHALLENGE         InsCode = 0x84
	INS_INTERNAL_AUTHENTICATE InsCode = 0x88
	INS_SELECT                InsCode = 0xA4
	INS_READ_BINARY           InsCode = 0xB0
	INS_READ_BINARY_BER       InsCode = 0xB1
	INS_READ_RECORD           InsCode = 0xB2
	INS_GET_RESPONSE          InsCode = 0xC0
	INS_GET_DATA              InsCode = 0xCA
	INS_UPDATE_BINARY         InsCode = 0xD6
	INS_UPDATE_RECORD         InsCode = 0xDC
	INS_APPEND_RECORD         InsCode = 0xE2
)

var insNames = map[InsCode]string{
	INS_VERIFY:                "INS_VERIFY",
	INS_EXTERNAL_AUTHENTICATE: "INS_EXTERNAL_AUTHENTICATE",
	INS_GET_CHALLENGE:         "INS_GET_CHALLENGE",
	INS_INTERNAL_AUTHENTICATE: "INS_INTERNAL_AUTHENTICATE",
	INS_SELECT:                "INS_SELECT",
	INS_READ_BINARY:           "INS_READ_BINARY",
	INS_READ_BINARY_BER:       "INS_READ_BINARY_BER",
	INS_READ_RECORD:           "INS_READ_RECORD",
	INS_GET_RESPONSE:          "INS_GET_RESPONSE",
	INS_GET_DATA:              "INS_GET_DATA",
	INS_UPDATE_BINARY:         "INS_UPDATE_BINARY",
	INS_UPDATE_RECORD:         "INS_UPDATE_RECORD",
	INS_APPEND_RECORD:         "INS_APPEND_RECORD",
}

func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("InsCode(0x%02X)", byte(i))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates ins and decodes its data format bit.
func NewInstruction(ins InsCode) (Instruction, error) {
	if hi := bits.GetRange(byte(ins), 8, 5); hi == 0x6 || hi == 0x9 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", byte(ins))
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// MustInstruction is like NewInstruction but panics on a reserved value.
func MustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose renders the instruction on one line.
func (i Instruction) Verbose() string {
	format := map[bool]string{false: "Standard", true: "BER-TLV"}[i.IsBERTLV]
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
