// Package bits holds the byte-level helpers used to pack and unpack APDU
// parameter bytes. Bits are numbered 1 (LSB) to 8 (MSB), as in ISO/IEC 7816.
package bits

// Bit returns a byte with only bit n set, or 0 when n is outside 1..8.
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

func IsSet(b byte, n uint) bool { return b&Bit(n) != 0 }

func Set(b byte, n uint) byte { return b | Bit(n) }

func Clear(b byte, n uint) byte { return b &^ Bit(n) }

// field returns the in-place mask and shift of bits high..low.
func field(high, low uint) (mask byte, shift uint, ok bool) {
	if low < 1 || high > 8 || high < low {
		return 0, 0, false
	}
	shift = low - 1
	return byte(0xFF>>(8-(high-low+1))) << shift, shift, true
}

// GetRange extracts bits high..low of b, right aligned.
// GetRange(0x44, 8, 4) returns 8, the SFI of a record P2.
func GetRange(b byte, high, low uint) byte {
	mask, shift, ok := field(high, low)
	if !ok {
		return 0
	}
	return (b & mask) >> shift
}

// Fits reports whether v can be stored in bits high..low.
func Fits(v byte, high, low uint) bool {
	mask, shift, ok := field(high, low)
	return ok && v <= mask>>shift
}

// PutRange writes v into bits high..low of b. Bits of v beyond the range are dropped, and
// an invalid range leaves b unchanged.
func PutRange(b byte, high, low uint, v byte) byte {
	mask, shift, ok := field(high, low)
	if !ok {
		return b
	}
	return b&^mask | v<<shift&mask
}
