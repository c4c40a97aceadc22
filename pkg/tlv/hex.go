package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

var hexCleaner = strings.NewReplacer(" ", "", "\n", "", "\t", "", ":", "")

// Hex constructs a byte slice from a series of hex strings.
// Spaces, tabs, newlines and colons are ignored so APDUs can be written as "94 8A 8B 40".
// It panics on invalid input and is meant for fixtures and constants.
func Hex(parts ...string) []byte {
	cleanHex := hexCleaner.Replace(strings.Join(parts, ""))
	data, err := hex.DecodeString(cleanHex)
	if err != nil {
		panic(fmt.Sprintf("invalid input '%s': %v", cleanHex, err))
	}
	return data
}

// ParseHex is the non-panicking variant of Hex, used for user supplied values.
func ParseHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(hexCleaner.Replace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return data, nil
}

// Spaced renders data as upper-case hex with a space between bytes ("94 8A 8B 40").
func Spaced(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
