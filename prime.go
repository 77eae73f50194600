// Package prime implements a CPU stressor that repeatedly searches for the next
// prime number after an advancing starting value using arbitrary precision
// integers, reporting the rate at which primes are found and the size of the
// largest prime.
package prime

import (
	"errors"

	"github.com/go-logr/logr"
)

var (
	// Logger to use in this package; default is a no-op logger.
	logger = logr.Discard()

	// The prime method name is not one of the known Advance Strategies.
	ErrUnknownMethod = errors.New("unknown prime method")
	// A resource required by a stressor, such as the stop signal handler,
	// could not be acquired.
	ErrNoResource = errors.New("no resource")
	// The stressor was built without arbitrary precision support.
	ErrNotImplemented = errors.New("not implemented")
)

// Change the logger instance used by this package.
func SetLogger(l logr.Logger) {
	logger = l
}
