//go:build !linux

package affinity

import (
	"runtime"
)

// Returns every CPU reported by the runtime.
func Allowed() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// Pin always fails with ErrUnsupported.
func Pin(_ int) (func() error, error) {
	return nil, ErrUnsupported
}
