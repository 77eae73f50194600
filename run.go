//go:build !prime_unimplemented

package prime

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/memes/prime/internal/affinity"
	"github.com/memes/prime/pkg/metrics"
)

// Run searches for primes until the continue predicate fails, the operation
// limit is reached, or a stop is requested through the signal source or ctx.
//
// The first stop request lets the search in progress complete. A second
// request unwinds immediately, abandoning the search goroutine and the big
// integers it owns; the returned Result has Forced set and Released unset.
// Both paths are normal completions. An error is only returned, wrapping
// ErrNoResource, if the stop handler cannot be installed.
func (s *Stressor) Run(ctx context.Context) (*Result, error) {
	logger := s.logger.WithValues("name", s.name, "instance", s.instance, "method", s.method.String())
	logger.V(1).Info("Run: enter", "progress", s.progress, "maxOps", s.maxOps)
	state := newSearchState()
	m := &measurements{}
	m.digits.Store(1)
	s.state.SetState(s.name, StateRun)
	deadline := s.clock.Now().Add(ProgressInterval)
	interrupt := newInterrupter(s.continuer)
	cancel, err := s.signals.Register(interrupt.Strike)
	if err != nil {
		s.state.SetState(s.name, StateDeinit)
		return nil, fmt.Errorf("%s: failed to install stop handler: %w: %w", s.name, ErrNoResource, err)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, interrupt.Strike)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.search(logger, state, m, deadline)
	}()
	forced := false
	select {
	case <-done:
	case <-interrupt.Forced():
		select {
		case <-done:
		default:
			forced = true
		}
	}

	m.finish()
	result := &Result{
		Name:   s.name,
		Forced: forced,
	}
	if forced {
		logger.V(0).Info("Search did not stop after repeated requests; abandoning search state")
	} else {
		state.release()
		result.Released = true
	}
	result.Ops = s.counter.Get()
	result.Digits = int(m.digits.Load())
	result.Duration = time.Duration(m.duration.Load())
	if result.Duration > 0 {
		result.Rate = float64(result.Ops) / result.Duration.Seconds()
	}
	logger.Info(summary(s.name, result.Ops, result.Digits), "ops", result.Ops, "digits", result.Digits, "rate", result.Rate, "forced", forced)
	s.metrics.Publish(s.name, MetricPrimesPerSecond, result.Rate, metrics.HarmonicMean)
	s.state.SetState(s.name, StateDeinit)
	logger.V(1).Info("Run: exit")
	return result, nil
}

// Returns true while the continue predicate holds and the operation limit, if
// any, has not been reached.
func (s *Stressor) keepRunning() bool {
	if !s.continuer.Continue() {
		return false
	}
	return s.maxOps == 0 || s.counter.Get() < s.maxOps
}

// The search loop; only the time spent inside the search primitive is added
// to the measured duration.
func (s *Stressor) search(logger logr.Logger, state *searchState, m *measurements, deadline time.Time) {
	if s.cpu >= 0 {
		release, err := affinity.Pin(s.cpu)
		if err != nil {
			logger.Error(err, "Failed to pin search to cpu; continuing", "cpu", s.cpu)
		} else {
			defer func() {
				if err := release(); err != nil {
					logger.Error(err, "Failed to restore cpu affinity; discarding thread", "cpu", s.cpu)
				}
			}()
		}
	}
	for {
		t1 := s.clock.Now()
		s.primer.NextPrime(state.value, state.start)
		t2 := s.clock.Now()
		m.duration.Add(int64(t2.Sub(t1)))
		s.method.Advance(state.start, state.value, state.factorial)
		s.counter.Inc()
		digits := DigitCount(state.value)
		m.digits.Store(int64(digits))
		if s.progress && !t2.Before(deadline) {
			deadline = deadline.Add(ProgressInterval)
			ops := s.counter.Get()
			m.report(func() {
				logger.Info(summary(s.name, ops, digits), "ops", ops, "digits", digits)
			})
		}
		if !s.keepRunning() {
			return
		}
	}
}
