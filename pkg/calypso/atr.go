package calypso

import (
	"fmt"
	"regexp"
)

// SAM ANSWER-TO-RESET:
//
//	3B | 3 or 5 interface bytes | 80 5A | 10 historical bytes | 82 90 00
//
// The third historical byte is the application subtype (C1, D0-D2, E1);
// the last four are the SAM serial number.
var samATRPattern = regexp.MustCompile(`^3B(?:[0-9A-F]{6}|[0-9A-F]{10})805A[0-9A-F]{20}829000$`)

// SamATR is the information carried by a SAM answer-to-reset.
type SamATR struct {
	Revision     SamRevision
	Subtype      byte
	SerialNumber []byte
}

// ParseSamATR resolves the SAM revision from its answer-to-reset.
func ParseSamATR(atr []byte) (*SamATR, error) {
	if !samATRPattern.MatchString(fmt.Sprintf("%X", atr)) {
		return nil, fmt.Errorf("ATR %X is not a Calypso SAM ATR", atr)
	}

	// Historical bytes sit right before the 82 90 00 trailer.
	hist := atr[len(atr)-13 : len(atr)-3]

	res := &SamATR{Subtype: hist[2], SerialNumber: append([]byte(nil), hist[6:10]...)}
	switch hist[2] {
	case 0xC1:
		res.Revision = SamRevisionC1
	case 0xD0, 0xD1, 0xD2:
		res.Revision = SamRevisionS1D
	case 0xE1:
		res.Revision = SamRevisionS1E
	default:
		return nil, fmt.Errorf("unknown SAM application subtype %02X", hist[2])
	}
	return res, nil
}

// ResolveSamRevision returns rev unless it is Auto, in which case the ATR decides.
func ResolveSamRevision(rev SamRevision, atr []byte) (SamRevision, error) {
	if rev != SamRevisionAuto {
		return rev, nil
	}
	parsed, err := ParseSamATR(atr)
	if err != nil {
		return rev, err
	}
	return parsed.Revision, nil
}
