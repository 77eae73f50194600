package prime

import (
	"sync"
	"sync/atomic"
)

// interrupter implements the two-strike stop policy. The first strike clears
// the continue predicate so the search loop exits after the search in
// progress; any further strike closes the forced channel so the caller can
// stop waiting for the search loop.
type interrupter struct {
	continuer Continuer
	strikes   atomic.Int32
	forced    chan struct{}
	once      sync.Once
}

func newInterrupter(continuer Continuer) *interrupter {
	return &interrupter{
		continuer: continuer,
		forced:    make(chan struct{}),
	}
}

// Strike is safe to call from any goroutine, any number of times.
func (i *interrupter) Strike() {
	i.continuer.SetContinue(false)
	if i.strikes.Add(1) > 1 {
		i.once.Do(func() {
			close(i.forced)
		})
	}
}

// Returns a channel that is closed on the second strike.
func (i *interrupter) Forced() <-chan struct{} {
	return i.forced
}
