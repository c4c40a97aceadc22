package iso7816

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/bits"
)

// SELECT (INS 'A4'):
//
//	P1        selection method (by file ID, by DF name, by path)
//	P2 b4-b3  what the card answers with (FCI, FCP, FMD, nothing)
//	P2 b2-b1  which occurrence of the name (first, last, next, previous)
//
// Calypso applications are selected by DF name with the first occurrence and an FCI answer.

// SelectionMethod is the P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID   SelectionMethod = 0x00
	SelectByDFName   SelectionMethod = 0x04
	SelectPathFromMF SelectionMethod = 0x08
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:   "File ID",
	SelectByDFName:   "DF Name (AID)",
	SelectPathFromMF: "Path from MF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Method(0x%02X)", byte(s))
}

// FileOccurrence is P2 b2-b1.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = iota
	LastOccurrence
	NextOccurrence
	PreviousOccurrence
)

// SelectionControl is P2 b4-b3.
type SelectionControl byte

const (
	ReturnFCI SelectionControl = iota
	ReturnFCP
	ReturnFMD
	ReturnNoData
)

var selectionControlNames = [...]string{"FCI", "FCP", "FMD", "No Data"}

func (s SelectionControl) String() string {
	if int(s) < len(selectionControlNames) {
		return selectionControlNames[s]
	}
	return fmt.Sprintf("Control(%d)", byte(s))
}

// SelectP2 packs the control and occurrence fields.
func SelectP2(ctrl SelectionControl, occurrence FileOccurrence) byte {
	p2 := bits.PutRange(0, 4, 3, byte(ctrl))
	return bits.PutRange(p2, 2, 1, byte(occurrence))
}

// NewSelectCommand builds a SELECT. A command carrying data has no Le: under T=0 the card
// answers 61XX and the Client fetches the data.
func NewSelectCommand(cla Class, method SelectionMethod, occurrence FileOccurrence, ctrl SelectionControl, data []byte) *CommandAPDU {
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), byte(method), SelectP2(ctrl, occurrence), data, ne)
}

// SelectByAID selects the first application named aid and asks for its FCI.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}
