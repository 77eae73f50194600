package prime

import (
	"math/big"
)

const (
	// The number of MR rounds to use when determining if the number is
	// probably a prime. A value of zero will apply a Baillie-PSW only test.
	MillerRabinRounds = 0
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// NextPrimer defines the search primitive used by a Stressor; implementations
// must set z to the smallest prime that is greater than or equal to x and
// return z. The value of x must not be modified.
type NextPrimer interface {
	NextPrime(z, x *big.Int) *big.Int
}

// ProbablePrimer is a NextPrimer that uses the probabilistic primality test
// provided by math/big.
type ProbablePrimer struct {
	// The number of Miller-Rabin rounds to apply in addition to Baillie-PSW.
	Rounds int
}

// Create a new ProbablePrimer with the package default number of rounds.
func NewProbablePrimer() *ProbablePrimer {
	return &ProbablePrimer{
		Rounds: MillerRabinRounds,
	}
}

// Determine the smallest prime number >= x by iterating over the odd integers
// from x until one passes the ProbablyPrime test.
func (p *ProbablePrimer) NextPrime(z, x *big.Int) *big.Int {
	l := logger.V(2).WithValues("bitlen", x.BitLen())
	l.Info("NextPrime: enter")
	if x.Cmp(two) <= 0 {
		z.Set(two)
		l.Info("NextPrime: exit", "result", z)
		return z
	}
	z.Set(x)
	if z.Bit(0) == 0 {
		z.Add(z, one)
	}
	for ; !z.ProbablyPrime(p.Rounds); z.Add(z, two) {
	}
	l.Info("NextPrime: exit", "bitlen", z.BitLen())
	return z
}
