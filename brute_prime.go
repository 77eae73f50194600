package prime

import (
	"math/big"
)

// TrialDivisionPrimer is a NextPrimer that certifies each candidate by
// iterating through the set of odd integers [3, sqrt(n)] to see if they divide
// wholly. This is a naive, brute force approach that quickly becomes
// impractical as the candidates grow, which makes it a heavier stressor.
type TrialDivisionPrimer struct{}

// Create a new TrialDivisionPrimer.
func NewTrialDivisionPrimer() *TrialDivisionPrimer {
	return &TrialDivisionPrimer{}
}

// Returns true if n is prime, using trial division by odd integers.
func bruteIsPrime(n *big.Int) bool {
	if n.Cmp(two) < 0 {
		return false
	}
	if n.Cmp(two) == 0 {
		return true
	}
	if n.Bit(0) == 0 {
		return false
	}
	r := new(big.Int).Sqrt(n)
	m := new(big.Int)
	for i := big.NewInt(3); i.Cmp(r) <= 0; i.Add(i, two) {
		if m.Mod(n, i).Sign() == 0 {
			return false
		}
	}
	return true
}

// Determine the smallest prime number >= x by iterating over the set of
// integers from x until one passes the brute force prime test.
func (p *TrialDivisionPrimer) NextPrime(z, x *big.Int) *big.Int {
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
	for ; !bruteIsPrime(z); z.Add(z, two) {
	}
	l.Info("NextPrime: exit", "bitlen", z.BitLen())
	return z
}
