package prime

import (
	"sync/atomic"
	"time"
)

// Counter tracks the number of operations (primes found) completed by a
// stressor. It is safe for concurrent use.
type Counter struct {
	ops atomic.Uint64
}

// Increment the operation count by one.
func (c *Counter) Inc() {
	c.ops.Add(1)
}

// Returns the current operation count.
func (c *Counter) Get() uint64 {
	return c.ops.Load()
}

// Continuer defines the continue predicate consulted by the search loop once
// per iteration, and the hook used to request a graceful stop.
type Continuer interface {
	Continue() bool
	SetContinue(bool)
}

// Flag is a Continuer backed by an atomic boolean. The zero value is stopped;
// use NewFlag to get a Flag that permits the loop to run.
type Flag struct {
	keepRunning atomic.Bool
}

// Create a new Flag set to continue.
func NewFlag() *Flag {
	f := &Flag{}
	f.keepRunning.Store(true)
	return f
}

func (f *Flag) Continue() bool {
	return f.keepRunning.Load()
}

func (f *Flag) SetContinue(keepRunning bool) {
	f.keepRunning.Store(keepRunning)
}

// Clock is the timing source used to measure search durations and to schedule
// progress reports.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// time.Now carries a monotonic reading, so Sub between two results is immune to
// wall clock changes.
func (systemClock) Now() time.Time {
	return time.Now()
}

// Returns a Clock that reads the system time.
func SystemClock() Clock {
	return systemClock{}
}
