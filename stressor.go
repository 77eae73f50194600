package prime

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/memes/prime/pkg/metrics"
)

const (
	// The interval between progress reports.
	ProgressInterval = 60 * time.Second
	// The name of the throughput metric published by every stressor.
	MetricPrimesPerSecond = "primes per second"
	// Format of progress and summary lines: worker name, primes found, and
	// the number of decimal digits in the largest prime.
	SummaryFormat = "%s: %d primes found, largest prime: %d digits long"
)

// MetricsSink receives the metrics published by a stressor when it finishes.
type MetricsSink interface {
	Publish(worker, name string, value float64, aggregation metrics.Aggregation)
}

type discardSink struct{}

func (discardSink) Publish(string, string, float64, metrics.Aggregation) {}

// Result summarises a completed stressor run.
type Result struct {
	// The stressor name.
	Name string
	// The number of primes found.
	Ops uint64
	// The number of decimal digits in the largest prime found.
	Digits int
	// Cumulative time spent in the search primitive.
	Duration time.Duration
	// Primes found per second of search time.
	Rate float64
	// True if the run was forcibly unwound by a second stop request.
	Forced bool
	// True if the big integer state was released; a forced run leaves the
	// state with the abandoned search.
	Released bool
}

// Stressor repeatedly searches for the next prime after an advancing start
// value until it is asked to stop. A Stressor must only be run once.
type Stressor struct {
	name      string
	instance  int
	logger    logr.Logger
	method    Method
	progress  bool
	maxOps    uint64
	cpu       int
	primer    NextPrimer
	clock     Clock
	continuer Continuer
	counter   *Counter
	metrics   MetricsSink
	state     StateReporter
	signals   SignalSource
}

// Defines the function signature for Stressor options.
type Option func(*Stressor)

// Create a new Stressor for the zero-based worker instance and apply any
// options. Progress reporting is forced off for every instance other than 0.
func NewStressor(name string, instance int, options ...Option) *Stressor {
	stressor := &Stressor{
		name:      name,
		instance:  instance,
		logger:    logger,
		method:    DefaultMethod,
		cpu:       -1,
		primer:    NewProbablePrimer(),
		clock:     SystemClock(),
		continuer: NewFlag(),
		counter:   &Counter{},
		metrics:   discardSink{},
		state:     NewLogStateReporter(logger),
		signals:   MultiSource{},
	}
	for _, option := range options {
		option(stressor)
	}
	if stressor.instance > 0 {
		stressor.progress = false
	}
	return stressor
}

// Use the supplied logger for the stressor.
func WithLogger(logger logr.Logger) Option {
	return func(s *Stressor) {
		s.logger = logger
	}
}

// Set the Advance Strategy.
func WithMethod(method Method) Option {
	return func(s *Stressor) {
		s.method = method
	}
}

// Enable periodic progress reports; ignored unless this is instance 0.
func WithProgress(progress bool) Option {
	return func(s *Stressor) {
		s.progress = progress
	}
}

// Stop after maxOps primes have been found; zero means no limit.
func WithMaxOps(maxOps uint64) Option {
	return func(s *Stressor) {
		s.maxOps = maxOps
	}
}

// Pin the search loop to the CPU; a negative value disables pinning.
func WithCPU(cpu int) Option {
	return func(s *Stressor) {
		s.cpu = cpu
	}
}

// Use the supplied search primitive.
func WithNextPrimer(primer NextPrimer) Option {
	return func(s *Stressor) {
		if primer != nil {
			s.primer = primer
		}
	}
}

// Use the supplied timing source.
func WithClock(clock Clock) Option {
	return func(s *Stressor) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Use the supplied continue predicate.
func WithContinuer(continuer Continuer) Option {
	return func(s *Stressor) {
		if continuer != nil {
			s.continuer = continuer
		}
	}
}

// Count operations with the supplied counter.
func WithCounter(counter *Counter) Option {
	return func(s *Stressor) {
		if counter != nil {
			s.counter = counter
		}
	}
}

// Publish the final throughput metric to the supplied sink.
func WithMetrics(sink MetricsSink) Option {
	return func(s *Stressor) {
		if sink != nil {
			s.metrics = sink
		}
	}
}

// Report state changes to the supplied reporter.
func WithStateReporter(reporter StateReporter) Option {
	return func(s *Stressor) {
		if reporter != nil {
			s.state = reporter
		}
	}
}

// Install the stop handler with the supplied signal source.
func WithSignalSource(source SignalSource) Option {
	return func(s *Stressor) {
		if source != nil {
			s.signals = source
		}
	}
}

// Returns the stressor name.
func (s *Stressor) Name() string {
	return s.name
}

// Returns the progress or summary line for the counts provided.
func summary(name string, ops uint64, digits int) string {
	return fmt.Sprintf(SummaryFormat, name, ops, digits)
}

// The big integers owned by a single run.
type searchState struct {
	start     *big.Int
	value     *big.Int
	factorial *big.Int
}

func newSearchState() *searchState {
	return &searchState{
		start:     big.NewInt(1),
		value:     new(big.Int),
		factorial: big.NewInt(2),
	}
}

// Clears and drops the big integers; must not be called while a search is
// still using them.
func (st *searchState) release() {
	st.start.SetInt64(0)
	st.value.SetInt64(0)
	st.factorial.SetInt64(0)
	st.start, st.value, st.factorial = nil, nil, nil
}

// Values written by the search loop and read when finishing, possibly while
// an abandoned search is still running.
type measurements struct {
	duration atomic.Int64
	digits   atomic.Int64
	mu       sync.Mutex
	finished bool
}

// Calls report unless finish has been called; an abandoned search must not
// log after the summary line.
func (m *measurements) report(report func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finished {
		report()
	}
}

func (m *measurements) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
}
