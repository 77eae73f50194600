package prime

import (
	"math"
	"math/big"
)

// DigitCount returns the exact number of decimal digits in the magnitude of x;
// zero has one digit.
//
// The bit length bounds the digit count to one of two adjacent values, so a
// single comparison against a power of ten resolves it without formatting x.
func DigitCount(x *big.Int) int {
	bits := x.BitLen()
	if bits == 0 {
		return 1
	}
	if bits < 64 {
		n := x.Uint64()
		if x.Sign() < 0 {
			n = new(big.Int).Abs(x).Uint64()
		}
		digits := 1
		for n >= 10 {
			n /= 10
			digits++
		}
		return digits
	}
	digits := int(float64(bits-1)*math.Log10(2)) + 1
	bound := new(big.Int).Exp(ten, big.NewInt(int64(digits)), nil)
	if new(big.Int).Abs(x).Cmp(bound) >= 0 {
		digits++
	}
	return digits
}
