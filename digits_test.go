package prime

import (
	"fmt"
	"math/big"
	"testing"
)

// The digit count must be exact at both ends of every decimal length.
func TestDigitCount_Boundaries(t *testing.T) {
	for length := 1; length <= 400; length++ {
		lower := new(big.Int).Exp(ten, big.NewInt(int64(length-1)), nil)
		upper := new(big.Int).Sub(new(big.Int).Exp(ten, big.NewInt(int64(length)), nil), one)
		t.Run(fmt.Sprintf("length=%d", length), func(t *testing.T) {
			if actual := DigitCount(lower); actual != length {
				t.Errorf("Checking 10^%d: expected %d got %d", length-1, length, actual)
			}
			if actual := DigitCount(upper); actual != length {
				t.Errorf("Checking 10^%d-1: expected %d got %d", length, length, actual)
			}
			negative := new(big.Int).Neg(upper)
			if actual := DigitCount(negative); actual != length {
				t.Errorf("Checking -(10^%d-1): expected %d got %d", length, length, actual)
			}
		})
	}
}

func TestDigitCount_Zero(t *testing.T) {
	if actual := DigitCount(new(big.Int)); actual != 1 {
		t.Errorf("Expected 1 got %d", actual)
	}
}

// Powers of two straddle decimal boundaries at every bit length.
func TestDigitCount_MatchesString(t *testing.T) {
	x := big.NewInt(1)
	for bits := 0; bits < 2048; bits++ {
		expected := len(x.String())
		if actual := DigitCount(x); actual != expected {
			t.Errorf("Checking 2^%d: expected %d got %d", bits, expected, actual)
		}
		minusOne := new(big.Int).Sub(x, one)
		expected = len(minusOne.String())
		if actual := DigitCount(minusOne); actual != expected {
			t.Errorf("Checking 2^%d-1: expected %d got %d", bits, expected, actual)
		}
		x.Lsh(x, 1)
	}
}
