package prime

import (
	"github.com/go-logr/logr"
)

// State describes the lifecycle of a stressor to external observers.
type State int

const (
	StateInit State = iota
	StateRun
	StateDeinit
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRun:
		return "run"
	case StateDeinit:
		return "deinit"
	default:
		return "unknown"
	}
}

// StateReporter receives stressor state changes. Implementations must be safe
// for concurrent use by multiple stressors.
type StateReporter interface {
	SetState(name string, state State)
}

// LogStateReporter is a StateReporter that logs every state change.
type LogStateReporter struct {
	logger logr.Logger
}

// Create a new LogStateReporter that writes to the supplied logger.
func NewLogStateReporter(logger logr.Logger) *LogStateReporter {
	return &LogStateReporter{
		logger: logger,
	}
}

func (r *LogStateReporter) SetState(name string, state State) {
	r.logger.V(1).Info("Stressor state changed", "name", name, "state", state.String())
}

// MultiStateReporter forwards every state change to each reporter in turn.
type MultiStateReporter []StateReporter

func (m MultiStateReporter) SetState(name string, state State) {
	for _, r := range m {
		r.SetState(name, state)
	}
}
