//go:build unix

package prime

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
)

func TestOSSignalSource(t *testing.T) {
	var count atomic.Int32
	source := NewOSSignalSource(syscall.SIGUSR1)
	cancel, err := source.Register(func() { count.Add(1) })
	if err != nil {
		t.Fatalf("Register returned an error: %v", err)
	}
	defer cancel()
	process, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess returned an error: %v", err)
	}
	if err := process.Signal(syscall.SIGUSR1); err != nil {
		t.Fatalf("Signal returned an error: %v", err)
	}
	if !waitForCount(&count, 1) {
		t.Error("Handler was not called for SIGUSR1")
	}
}
