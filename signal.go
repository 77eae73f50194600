package prime

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"
)

var (
	// The signal source has already been registered with a handler.
	errAlreadyRegistered = errors.New("signal source is already registered")
	// An OS signal source was created without any signals.
	errNoSignals = errors.New("no signals to register")
)

// SignalSource delivers asynchronous stop requests to a stressor. Register
// installs handler, which may be called any number of times from any
// goroutine until the returned cancel function is called.
type SignalSource interface {
	Register(handler func()) (cancel func(), err error)
}

// TimerSource is a SignalSource that delivers a stop request when the run
// timeout expires, and a second stop request if the stressor is still running
// after a further grace period.
type TimerSource struct {
	timeout time.Duration
	grace   time.Duration
	mu      sync.Mutex
	timers  []*time.Timer
	active  bool
}

// Create a new TimerSource. A zero timeout never fires; a zero grace period
// disables the watchdog re-delivery.
func NewTimerSource(timeout, grace time.Duration) *TimerSource {
	return &TimerSource{
		timeout: timeout,
		grace:   grace,
	}
}

func (t *TimerSource) Register(handler func()) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return nil, errAlreadyRegistered
	}
	t.active = true
	if t.timeout > 0 {
		t.timers = append(t.timers, time.AfterFunc(t.timeout, func() {
			handler()
			if t.grace <= 0 {
				return
			}
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.active {
				t.timers = append(t.timers, time.AfterFunc(t.grace, handler))
			}
		}))
	}
	return t.cancel, nil
}

func (t *TimerSource) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = nil
	t.active = false
}

// OSSignalSource is a SignalSource that calls the handler for every delivery
// of the configured operating system signals.
type OSSignalSource struct {
	signals []os.Signal
}

// Create a new OSSignalSource for the signals provided.
func NewOSSignalSource(signals ...os.Signal) *OSSignalSource {
	return &OSSignalSource{
		signals: signals,
	}
}

func (o *OSSignalSource) Register(handler func()) (func(), error) {
	if len(o.signals) == 0 {
		return nil, errNoSignals
	}
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, o.signals...)
	go func() {
		for {
			select {
			case <-ch:
				handler()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}, nil
}

// MultiSource combines several SignalSources; each delivery from any of them
// is passed to the handler.
type MultiSource []SignalSource

func (m MultiSource) Register(handler func()) (func(), error) {
	cancels := make([]func(), 0, len(m))
	cancelAll := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
	for i, source := range m {
		cancel, err := source.Register(handler)
		if err != nil {
			cancelAll()
			return nil, fmt.Errorf("failed to register signal source %d: %w", i, err)
		}
		cancels = append(cancels, cancel)
	}
	return cancelAll, nil
}
