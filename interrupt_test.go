package prime

import (
	"sync"
	"testing"
)

func TestInterrupter_FirstStrike(t *testing.T) {
	flag := NewFlag()
	interrupt := newInterrupter(flag)
	interrupt.Strike()
	if flag.Continue() {
		t.Error("Expected the first strike to clear the continue flag")
	}
	select {
	case <-interrupt.Forced():
		t.Error("Expected the first strike not to force")
	default:
	}
}

func TestInterrupter_SecondStrike(t *testing.T) {
	interrupt := newInterrupter(NewFlag())
	interrupt.Strike()
	interrupt.Strike()
	select {
	case <-interrupt.Forced():
	default:
		t.Error("Expected the second strike to force")
	}
	// Further strikes must not panic on a closed channel.
	interrupt.Strike()
}

func TestInterrupter_Concurrent(t *testing.T) {
	interrupt := newInterrupter(NewFlag())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			interrupt.Strike()
		}()
	}
	wg.Wait()
	<-interrupt.Forced()
}

func TestFlag(t *testing.T) {
	if (&Flag{}).Continue() {
		t.Error("Expected the zero Flag to be stopped")
	}
	flag := NewFlag()
	if !flag.Continue() {
		t.Error("Expected a new Flag to continue")
	}
	flag.SetContinue(false)
	if flag.Continue() {
		t.Error("Expected SetContinue(false) to stop")
	}
}
