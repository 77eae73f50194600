package prime

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/memes/prime/pkg/metrics"
)

// The primes below 300, used to verify search primitives.
var verificationPrimes = []int64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67, 71,
	73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127, 131, 137, 139, 149, 151,
	157, 163, 167, 173, 179, 181, 191, 193, 197, 199, 211, 223, 227, 229, 233,
	239, 241, 251, 257, 263, 269, 271, 277, 281, 283, 293,
}

// Search start values are verified up to, but not including, the largest
// prime in the table.
var primeVerifyLimit = verificationPrimes[len(verificationPrimes)-1]

// A Clock that only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// A NextPrimer that delegates to a real primitive, records every start and
// result, and advances a fake clock by a fixed latency per call.
type recordingPrimer struct {
	mu      sync.Mutex
	inner   NextPrimer
	clock   *fakeClock
	latency time.Duration
	starts  []*big.Int
	primes  []*big.Int
}

func newRecordingPrimer(clock *fakeClock, latency time.Duration) *recordingPrimer {
	return &recordingPrimer{
		inner:   NewProbablePrimer(),
		clock:   clock,
		latency: latency,
	}
}

func (p *recordingPrimer) NextPrime(z, x *big.Int) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = append(p.starts, new(big.Int).Set(x))
	p.inner.NextPrime(z, x)
	p.primes = append(p.primes, new(big.Int).Set(z))
	p.clock.Advance(p.latency)
	return z
}

// A NextPrimer that blocks inside every search until released.
type blockingPrimer struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingPrimer() *blockingPrimer {
	return &blockingPrimer{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (p *blockingPrimer) NextPrime(z, x *big.Int) *big.Int {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return z.Set(x)
}

// A Continuer that permits exactly limit iterations of the search loop.
type iterationContinuer struct {
	mu    sync.Mutex
	limit int
	calls int
	stop  bool
}

func (c *iterationContinuer) Continue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return !c.stop && c.calls < c.limit
}

func (c *iterationContinuer) SetContinue(keepRunning bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop = !keepRunning
}

// A Continuer that reports every check on checked.
type notifyingContinuer struct {
	*Flag
	checked chan struct{}
}

func newNotifyingContinuer() *notifyingContinuer {
	return &notifyingContinuer{
		Flag:    NewFlag(),
		checked: make(chan struct{}, 1),
	}
}

func (c *notifyingContinuer) Continue() bool {
	keepRunning := c.Flag.Continue()
	select {
	case c.checked <- struct{}{}:
	default:
	}
	return keepRunning
}

// A SignalSource whose handler is invoked by the test.
type manualSource struct {
	mu       sync.Mutex
	handler  func()
	canceled bool
}

func (s *manualSource) Register(handler func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.canceled = true
	}, nil
}

func (s *manualSource) fire() {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	handler()
}

// A SignalSource that cannot be registered.
type failingSource struct{}

func (failingSource) Register(func()) (func(), error) {
	return nil, errNoSignals
}

type publication struct {
	worker      string
	name        string
	value       float64
	aggregation metrics.Aggregation
}

type recordingSink struct {
	mu           sync.Mutex
	publications []publication
}

func (r *recordingSink) Publish(worker, name string, value float64, aggregation metrics.Aggregation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publications = append(r.publications, publication{worker, name, value, aggregation})
}

type recordingStateReporter struct {
	mu     sync.Mutex
	states []State
}

func (r *recordingStateReporter) SetState(_ string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

// Collects the formatted log lines written at verbosity 0.
type logLines struct {
	mu    sync.Mutex
	lines []string
}

func newCapturingLogger() (logr.Logger, *logLines) {
	lines := &logLines{}
	return funcr.New(func(prefix, args string) {
		lines.mu.Lock()
		defer lines.mu.Unlock()
		lines.lines = append(lines.lines, args)
	}, funcr.Options{}), lines
}

// Returns the captured lines that contain substr.
func (l *logLines) containing(substr string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	matches := []string{}
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			matches = append(matches, line)
		}
	}
	return matches
}
