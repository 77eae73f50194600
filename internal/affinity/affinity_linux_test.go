//go:build linux

package affinity

import (
	"errors"
	"runtime"
	"testing"

	"golang.org/x/sys/unix"
)

func TestAllowed(t *testing.T) {
	cpus, err := Allowed()
	if err != nil {
		t.Fatalf("Allowed returned an error: %v", err)
	}
	if len(cpus) == 0 {
		t.Fatal("Allowed returned no cpus")
	}
	for i := 1; i < len(cpus); i++ {
		if cpus[i] <= cpus[i-1] {
			t.Errorf("cpus are not ascending: %v", cpus)
		}
	}
}

func TestPin(t *testing.T) {
	cpus, err := Allowed()
	if err != nil {
		t.Fatalf("Allowed returned an error: %v", err)
	}
	release, err := Pin(cpus[0])
	if err != nil {
		t.Fatalf("Pin returned an error: %v", err)
	}
	pinned, err := Allowed()
	if err != nil {
		t.Errorf("Allowed returned an error while pinned: %v", err)
	}
	if len(pinned) != 1 || pinned[0] != cpus[0] {
		t.Errorf("Expected affinity [%d], got %v", cpus[0], pinned)
	}
	if err := release(); err != nil {
		t.Fatalf("release returned an error: %v", err)
	}
	restored, err := Allowed()
	if err != nil {
		t.Fatalf("Allowed returned an error after release: %v", err)
	}
	if len(restored) != len(cpus) {
		t.Errorf("Expected %d cpus after release, got %d", len(cpus), len(restored))
	}
}

func TestPin_RestoreFailure(t *testing.T) {
	cpus, err := Allowed()
	if err != nil {
		t.Fatalf("Allowed returned an error: %v", err)
	}
	unlocks := 0
	t.Cleanup(func() {
		setAffinity = unix.SchedSetaffinity
		unlockOSThread = runtime.UnlockOSThread
	})
	unlockOSThread = func() {
		unlocks++
		runtime.UnlockOSThread()
	}
	// The goroutine exits with its thread still locked, so the pinned thread
	// is discarded rather than returned to the scheduler.
	errs := make(chan error, 1)
	go func() {
		release, err := Pin(cpus[0])
		if err != nil {
			errs <- err
			return
		}
		setAffinity = func(int, *unix.CPUSet) error {
			return unix.EINVAL
		}
		errs <- release()
	}()
	err = <-errs
	if !errors.Is(err, unix.EINVAL) {
		t.Errorf("Checking release error: expected %v got %v", unix.EINVAL, err)
	}
	if unlocks != 0 {
		t.Errorf("Checking unlocks: expected %d got %d", 0, unlocks)
	}
}
