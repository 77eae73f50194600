//go:build linux

package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	setAffinity    = unix.SchedSetaffinity
	unlockOSThread = runtime.UnlockOSThread
)

// Returns the CPUs the process is allowed to run on, in ascending order.
func Allowed() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("failed to get cpu affinity: %w", err)
	}
	cpus := make([]int, 0, set.Count())
	for cpu := 0; len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	return cpus, nil
}

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to cpu. The returned function restores the previous affinity and unlocks
// the thread; it must be called from the same goroutine. If the previous
// affinity cannot be restored the thread stays locked, so the runtime discards
// it when the goroutine exits instead of reusing a pinned thread.
func Pin(cpu int) (func() error, error) {
	runtime.LockOSThread()
	var previous unix.CPUSet
	if err := unix.SchedGetaffinity(0, &previous); err != nil {
		unlockOSThread()
		return nil, fmt.Errorf("failed to get cpu affinity: %w", err)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := setAffinity(0, &set); err != nil {
		unlockOSThread()
		return nil, fmt.Errorf("failed to set cpu affinity to %d: %w", cpu, err)
	}
	return func() error {
		if err := setAffinity(0, &previous); err != nil {
			return fmt.Errorf("failed to restore cpu affinity: %w", err)
		}
		unlockOSThread()
		return nil
	}, nil
}
