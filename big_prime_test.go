package prime

import (
	"fmt"
	"math/big"
	"sort"
	"testing"
)

const (
	BENCHMARK_PRIME_EXPONENT_LIMIT = 30
)

// Returns the smallest verification prime >= n.
func expectedNextPrime(n int64) int64 {
	return verificationPrimes[sort.Search(len(verificationPrimes), func(idx int) bool { return verificationPrimes[idx] >= n })]
}

func testNextPrime(primer NextPrimer, start int64, expected int64, t *testing.T) {
	t.Helper()
	x := big.NewInt(start)
	actual := primer.NextPrime(new(big.Int), x)
	if actual.Cmp(big.NewInt(expected)) != 0 {
		t.Errorf("Checking start: %d: expected %d got %s", start, expected, actual)
	}
	if x.Int64() != start {
		t.Errorf("Checking start: %d: input was modified to %s", start, x)
	}
}

// Verify that the probable prime solver gives the correct smallest prime
// number >= n for the set of integers [0, largest prime in table].
func TestProbablePrimerNextPrime(t *testing.T) {
	primer := NewProbablePrimer()
	for i := int64(0); i <= primeVerifyLimit; i++ {
		i := i
		expected := expectedNextPrime(i)
		t.Run(fmt.Sprintf("start=%d", i), func(t *testing.T) {
			t.Parallel()
			testNextPrime(primer, i, expected, t)
		})
	}
}

// A prime start value is its own next prime, and the result may share
// storage with the input.
func TestProbablePrimerNextPrime_Aliased(t *testing.T) {
	primer := NewProbablePrimer()
	z := big.NewInt(90)
	primer.NextPrime(z, z)
	if z.Int64() != 97 {
		t.Errorf("Expected 97 got %s", z)
	}
	primer.NextPrime(z, z)
	if z.Int64() != 97 {
		t.Errorf("Expected 97 to be unchanged, got %s", z)
	}
}

// Mersenne prime 2^127-1 is found from below.
func TestProbablePrimerNextPrime_Large(t *testing.T) {
	primer := NewProbablePrimer()
	expected := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	start := new(big.Int).Sub(expected, big.NewInt(20))
	actual := primer.NextPrime(new(big.Int), start)
	if actual.Cmp(expected) != 0 {
		t.Errorf("Expected %s got %s", expected, actual)
	}
}

// Benchmark the probable prime solver method with starting points as a power
// of 10.
func BenchmarkProbablePrimerNextPrime(b *testing.B) {
	primer := NewProbablePrimer()
	for exp := 0; exp < BENCHMARK_PRIME_EXPONENT_LIMIT; exp++ {
		start := new(big.Int).Exp(ten, big.NewInt(int64(exp)), nil)
		b.Run(fmt.Sprintf("start=10^%d", exp), func(b *testing.B) {
			z := new(big.Int)
			for i := 0; i < b.N; i++ {
				_ = primer.NextPrime(z, start)
			}
		})
	}
}
