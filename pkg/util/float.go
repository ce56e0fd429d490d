package util

import (
	"encoding/binary"
	"math"
)

// PutFloat80 stores f in the x87 80-bit extended format.
func PutFloat80(buf []byte, f float64) {
	bits := math.Float64bits(f)
	sign := uint16(bits>>63) << 15
	exp := int(bits>>52) & 0x7ff
	frac := bits & (1<<52 - 1)

	var mant uint64
	var exp80 uint16
	switch {
	case exp == 0 && frac == 0:
		// zero
	case exp == 0x7ff:
		exp80 = 0x7fff
		mant = 1<<63 | frac<<11
	case exp == 0:
		// Subnormal doubles are normal in the wider format.
		shift := 0
		for frac&(1<<52) == 0 {
			frac <<= 1
			shift++
		}
		exp80 = uint16(1 - 1023 - shift + 16383)
		mant = frac << 11
	default:
		exp80 = uint16(exp - 1023 + 16383)
		mant = 1<<63 | frac<<11
	}
	binary.LittleEndian.PutUint64(buf, mant)
	binary.LittleEndian.PutUint16(buf[8:], sign|exp80)
}
