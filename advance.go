package prime

import (
	"fmt"
	"math/big"
	"strings"
)

// Method selects the Advance Strategy used to calculate the next search start
// value after a prime has been found.
type Method int

const (
	// Multiply start by an incrementing factorial multiplier.
	MethodFactorial Method = iota
	// Start the next search just past the last prime found.
	MethodInc
	// Double start.
	MethodPwr2
	// Multiply start by ten.
	MethodPwr10
)

// The Advance Strategy used when none is configured.
const DefaultMethod = MethodInc

var methodNames = []string{
	MethodFactorial: "factorial",
	MethodInc:       "inc",
	MethodPwr2:      "pwr2",
	MethodPwr10:     "pwr10",
}

var (
	ten = big.NewInt(10)
)

// Returns the names of all valid methods, in declaration order.
func MethodNames() []string {
	names := make([]string, len(methodNames))
	copy(names, methodNames)
	return names
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// Returns the Method with the given name, or an error wrapping ErrUnknownMethod
// that enumerates the valid choices.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return DefaultMethod, fmt.Errorf("%w %q: prime-method must be one of: %s", ErrUnknownMethod, name, strings.Join(methodNames, " "))
}

// Advance updates start in place to the next search start value. Value is the
// most recently found prime >= start, and factorial is the running multiplier
// used by MethodFactorial; factorial is only modified by that method. A Method
// outside the declared range advances as MethodFactorial.
func (m Method) Advance(start, value, factorial *big.Int) {
	switch m {
	case MethodInc:
		start.Add(value, two)
	case MethodPwr2:
		start.Lsh(start, 1)
	case MethodPwr10:
		start.Mul(start, ten)
	default:
		start.Mul(start, factorial)
		factorial.Add(factorial, one)
	}
}
