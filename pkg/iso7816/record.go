package iso7816

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/bits"
)

// Record commands (READ RECORD B2, UPDATE RECORD DC, APPEND RECORD E2) share one P2
// layout: bits 8-4 carry the SFI of the target EF (0 means the current EF) and bits 3-1
// the addressing mode. With bit 3 set P1 is a record number, 00 standing for the current
// record; with bit 3 clear P1 is a record identifier. APPEND RECORD always uses mode 000.

// MaxSFI is the largest Short File Identifier encodable on 5 bits.
const MaxSFI = 0x1F

// ReadRecordMode defines how to interpret P1 and which record(s) to read.
type ReadRecordMode byte

const (
	RefByID_FirstOccurrence    ReadRecordMode = 0b000
	RefByID_LastOccurrence     ReadRecordMode = 0b001
	RefByID_NextOccurrence     ReadRecordMode = 0b010
	RefByID_PreviousOccurrence ReadRecordMode = 0b011

	RefByNum_ReadP1              ReadRecordMode = 0b100
	RefByNum_ReadAllFromP1       ReadRecordMode = 0b101
	RefByNum_ReadAllFromLastToP1 ReadRecordMode = 0b110
)

var readRecordModeNames = [...]string{
	RefByID_FirstOccurrence:      "Ref ID: First Occurrence",
	RefByID_LastOccurrence:       "Ref ID: Last Occurrence",
	RefByID_NextOccurrence:       "Ref ID: Next Occurrence",
	RefByID_PreviousOccurrence:   "Ref ID: Previous Occurrence",
	RefByNum_ReadP1:              "Ref Num: Record P1",
	RefByNum_ReadAllFromP1:       "Ref Num: All from P1",
	RefByNum_ReadAllFromLastToP1: "Ref Num: All from Last to P1",
}

func (m ReadRecordMode) String() string {
	if int(m) < len(readRecordModeNames) {
		return readRecordModeNames[m]
	}
	return fmt.Sprintf("Unknown Mode (0x%X)", byte(m))
}

// ByNumber reports whether P1 holds a record number rather than an identifier.
func (m ReadRecordMode) ByNumber() bool {
	return bits.IsSet(byte(m), 3)
}

// RecordP2 packs an SFI and a mode into a record command P2 byte: (SFI << 3) | Mode.
func RecordP2(sfi byte, mode ReadRecordMode) byte {
	p2 := bits.PutRange(0, 8, 4, sfi)
	return bits.PutRange(p2, 3, 1, byte(mode))
}

// NewReadRecordCommand builds a READ RECORD with Le 00.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode ReadRecordMode) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_READ_RECORD), p1, RecordP2(sfi, mode), nil, MaxShortLe)
}

// ReadRecord reads record recordNumber of the EF designated by sfi.
func ReadRecord(cla Class, sfi byte, recordNumber byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, recordNumber, RefByNum_ReadP1)
}

// ReadAllRecords reads every record from startRecordNumber to the end of the file.
func ReadAllRecords(cla Class, sfi byte, startRecordNumber byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, startRecordNumber, RefByNum_ReadAllFromP1)
}

// UpdateRecord overwrites record recordNumber of the EF designated by sfi ("Case 3").
func UpdateRecord(cla Class, sfi byte, recordNumber byte, data []byte) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_UPDATE_RECORD), recordNumber, RecordP2(sfi, RefByNum_ReadP1), data, 0)
}

// AppendRecord adds a record to a linear or cyclic EF ("Case 3"). P1 is always 00.
func AppendRecord(cla Class, sfi byte, data []byte) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_APPEND_RECORD), 0x00, RecordP2(sfi, RefByID_FirstOccurrence), data, 0)
}

// GetData retrieves the data object designated by a one or two byte tag (P1-P2).
func GetData(cla Class, tag uint16) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_GET_DATA), byte(tag>>8), byte(tag), nil, MaxShortLe)
}
