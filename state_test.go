package prime

import (
	"sync"
	"testing"
)

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateInit:   "init",
		StateRun:    "run",
		StateDeinit: "deinit",
		State(42):   "unknown",
	}
	for state, expected := range tests {
		if actual := state.String(); actual != expected {
			t.Errorf("Expected %q got %q", expected, actual)
		}
	}
}

func TestMultiStateReporter(t *testing.T) {
	first := &recordingStateReporter{}
	second := &recordingStateReporter{}
	reporter := MultiStateReporter{first, second, NewLogStateReporter(logger)}
	reporter.SetState("prime-0", StateRun)
	reporter.SetState("prime-0", StateDeinit)
	for i, r := range []*recordingStateReporter{first, second} {
		if len(r.states) != 2 || r.states[0] != StateRun || r.states[1] != StateDeinit {
			t.Errorf("Reporter %d: expected run then deinit, got %v", i, r.states)
		}
	}
}

func TestCounter(t *testing.T) {
	counter := &Counter{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				counter.Inc()
			}
		}()
	}
	wg.Wait()
	if actual := counter.Get(); actual != 8000 {
		t.Errorf("Expected 8000 got %d", actual)
	}
}
