package session

import (
	"fmt"
	"strings"

	"github.com/gregLibert/calypso-session/pkg/calypso"
)

// Phase is the position of a session in its lifecycle.
//
//	Idle -> Identified -> Opened -> Proceeding* -> Closing -> Authenticated | Failed
//
// Any error moves the session to Failed. Authenticated and Failed are terminal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIdentified
	PhaseOpened
	PhaseProceeding
	PhaseClosing
	PhaseAuthenticated
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseIdentified:
		return "Identified"
	case PhaseOpened:
		return "Opened"
	case PhaseProceeding:
		return "Proceeding"
	case PhaseClosing:
		return "Closing"
	case PhaseAuthenticated:
		return "Authenticated"
	case PhaseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Terminal reports whether no further operation is possible on the session.
func (p Phase) Terminal() bool {
	return p == PhaseAuthenticated || p == PhaseFailed
}

// State is the secure session state. Engine.State returns copies.
type State struct {
	Phase Phase

	PoRevision  calypso.PoRevision
	SamRevision calypso.SamRevision

	AID          []byte
	SerialNumber []byte
	FCI          *calypso.FCI

	KeyIndex     byte
	KIF          byte
	KVC          byte
	SamChallenge []byte

	// PreviousRatified is the ratification status of the previous session, from Open Session.
	PreviousRatified bool
	// OpenRecord is the record read by Open Session, if any.
	OpenRecord []byte

	Transcript *Transcript

	// Err is the cause of a Failed session.
	Err error
}

// Describe generates an ASCII report of the session.
func (s *State) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== SECURE SESSION REPORT ===\n")
	sb.WriteString(fmt.Sprintf("[1] Phase: %s\n", s.Phase))
	if s.Phase == PhaseFailed && s.Err != nil {
		sb.WriteString(fmt.Sprintf("    + Cause:   %v\n", s.Err))
	}

	if s.SerialNumber != nil {
		sb.WriteString("[2] Identification\n")
		sb.WriteString(fmt.Sprintf("    + AID:     %X\n", s.AID))
		sb.WriteString(fmt.Sprintf("    + Serial:  %X\n", s.SerialNumber))
		sb.WriteString(fmt.Sprintf("    + PO:      %s\n", s.PoRevision))
		sb.WriteString(fmt.Sprintf("    + SAM:     %s\n", s.SamRevision))
	}

	if s.Transcript != nil {
		sb.WriteString("[3] Session\n")
		sb.WriteString(fmt.Sprintf("    + Key:     index %d, KIF %02X, KVC %02X\n", s.KeyIndex, s.KIF, s.KVC))
		sb.WriteString(fmt.Sprintf("    + Previous session ratified: %t\n", s.PreviousRatified))
		sb.WriteString(fmt.Sprintf("    + Exchanges: %d\n", len(s.Transcript.Entries)))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (s *State) snapshot() State {
	c := *s
	c.Transcript = s.Transcript.clone()
	return c
}
