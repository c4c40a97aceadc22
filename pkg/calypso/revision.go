package calypso

import (
	"fmt"

	"github.com/gregLibert/calypso-session/pkg/iso7816"
)

// PoRevision identifies the card application generation.
type PoRevision int

const (
	// PoRevisionLegacy covers revision 1 and 2 cards (proprietary class 0x94).
	PoRevisionLegacy PoRevision = iota
	PoRevision31
	// PoRevision32 pads the Open Session challenge and uses 8-byte signatures.
	PoRevision32
)

func (r PoRevision) String() string {
	switch r {
	case PoRevisionLegacy:
		return "Legacy"
	case PoRevision31:
		return "Rev3.1"
	case PoRevision32:
		return "Rev3.2"
	default:
		return fmt.Sprintf("PoRevision(%d)", int(r))
	}
}

// ParsePoRevision accepts the names used in configuration files.
func ParsePoRevision(s string) (PoRevision, error) {
	switch s {
	case "legacy", "rev2", "rev2.4":
		return PoRevisionLegacy, nil
	case "rev3.1", "rev3":
		return PoRevision31, nil
	case "rev3.2":
		return PoRevision32, nil
	}
	return 0, fmt.Errorf("unknown PO revision %q", s)
}

// SamRevision identifies the SAM product family.
type SamRevision int

const (
	SamRevisionC1 SamRevision = iota
	SamRevisionS1E
	// SamRevisionS1D is the legacy family (proprietary class 0x94).
	SamRevisionS1D
	// SamRevisionAuto defers the choice to the SAM answer-to-reset.
	SamRevisionAuto
)

func (r SamRevision) String() string {
	switch r {
	case SamRevisionC1:
		return "C1"
	case SamRevisionS1E:
		return "S1E"
	case SamRevisionS1D:
		return "S1D"
	case SamRevisionAuto:
		return "Auto"
	default:
		return fmt.Sprintf("SamRevision(%d)", int(r))
	}
}

// ParseSamRevision accepts the names used in configuration files.
func ParseSamRevision(s string) (SamRevision, error) {
	switch s {
	case "c1", "C1":
		return SamRevisionC1, nil
	case "s1e", "S1E":
		return SamRevisionS1E, nil
	case "s1d", "S1D":
		return SamRevisionS1D, nil
	case "auto", "":
		return SamRevisionAuto, nil
	}
	return 0, fmt.Errorf("unknown SAM revision %q", s)
}

var (
	poClasses = map[PoRevision]iso7816.Class{
		PoRevisionLegacy: iso7816.MustClass(iso7816.ClaCalypsoLegacy),
		PoRevision31:     iso7816.MustClass(iso7816.ClaISO),
		PoRevision32:     iso7816.MustClass(iso7816.ClaISO),
	}

	samClasses = map[SamRevision]iso7816.Class{
		SamRevisionC1:  iso7816.MustClass(iso7816.ClaCalypsoSAM),
		SamRevisionS1E: iso7816.MustClass(iso7816.ClaCalypsoSAM),
		SamRevisionS1D: iso7816.MustClass(iso7816.ClaCalypsoLegacy),
	}
)

// PoClass returns the class byte used for every command sent to a card of revision rev.
func PoClass(rev PoRevision) (iso7816.Class, error) {
	cla, ok := poClasses[rev]
	if !ok {
		return iso7816.Class{}, &ParameterError{Field: "po revision", Reason: rev.String() + " has no class byte"}
	}
	return cla, nil
}

// SamClass returns the class byte for SAM commands. Auto must be resolved beforehand.
func SamClass(rev SamRevision) (iso7816.Class, error) {
	cla, ok := samClasses[rev]
	if !ok {
		return iso7816.Class{}, &ParameterError{Field: "sam revision", Reason: rev.String() + " has no class byte"}
	}
	return cla, nil
}

// Parameter ranges shared by the PO encoders.
const (
	MaxKeyIndex     = 3
	MaxRecordNumber = 0x1F
	maxLegacyRecord = 0x0F

	// MaxRecordData keeps a record write, header and Lc included, inside one Digest Update.
	MaxRecordData = iso7816.MaxShortLc - 5
)

// OpenSessionParams derives P1 and P2 of Open Session and reports whether the SAM challenge
// is prefixed with a zero byte.
//
//	Legacy: P1 = 0x80 + record*8 + key, P2 = sfi*8      (key 0 is rejected)
//	Rev3.1: P1 = record*8 + key,        P2 = sfi*8 + 1
//	Rev3.2: P1 = record*8 + key,        P2 = sfi*8 + 2  (challenge padded)
func OpenSessionParams(rev PoRevision, keyIndex, recordNumber, sfi byte) (p1, p2 byte, pad bool, err error) {
	if keyIndex > MaxKeyIndex {
		return 0, 0, false, &ParameterError{Kind: KindOpenSession, Field: "key index", Reason: fmt.Sprintf("%d is above %d", keyIndex, MaxKeyIndex)}
	}
	if sfi > iso7816.MaxSFI {
		return 0, 0, false, &ParameterError{Kind: KindOpenSession, Field: "sfi", Reason: fmt.Sprintf("0x%02X is above 0x1F", sfi)}
	}

	switch rev {
	case PoRevisionLegacy:
		if keyIndex == 0 {
			return 0, 0, false, &ParameterError{Kind: KindOpenSession, Field: "key index", Reason: "0 is not allowed on legacy cards"}
		}
		if recordNumber > maxLegacyRecord {
			return 0, 0, false, &ParameterError{Kind: KindOpenSession, Field: "record number", Reason: fmt.Sprintf("0x%02X is above 0x0F", recordNumber)}
		}
		return 0x80 + recordNumber*8 + keyIndex, sfi * 8, false, nil
	case PoRevision31, PoRevision32:
		if recordNumber > MaxRecordNumber {
			return 0, 0, false, &ParameterError{Kind: KindOpenSession, Field: "record number", Reason: fmt.Sprintf("0x%02X is above 0x1F", recordNumber)}
		}
		if rev == PoRevision31 {
			return recordNumber*8 + keyIndex, sfi*8 + 1, false, nil
		}
		return recordNumber*8 + keyIndex, sfi*8 + 2, true, nil
	}
	return 0, 0, false, &ParameterError{Kind: KindOpenSession, Field: "po revision", Reason: rev.String() + " is unknown"}
}

// RevisionFromStartup infers the card revision from the application type byte of the
// startup information. Values outside both ranges keep fallback.
func RevisionFromStartup(b byte, fallback PoRevision) PoRevision {
	switch {
	case b > 0x06 && b < 0x1F:
		return PoRevisionLegacy
	case b > 0x20 && b < 0x7F:
		return PoRevision31
	default:
		return fallback
	}
}

// ChallengeLength is the SAM challenge size carried by Open Session.
func ChallengeLength(rev PoRevision) int {
	if rev == PoRevision32 {
		return 8
	}
	return 4
}

// SignatureLength is the half-session signature size.
func SignatureLength(rev PoRevision) int {
	if rev == PoRevision32 {
		return 8
	}
	return 4
}

var defaultKIFs = map[byte]byte{
	1: 0x21,
	2: 0x27,
	3: 0x30,
}

// DefaultKIF is the key identifier assumed for a key index when the card returns none,
// as legacy cards do.
func DefaultKIF(keyIndex byte) (byte, bool) {
	kif, ok := defaultKIFs[keyIndex]
	return kif, ok
}
