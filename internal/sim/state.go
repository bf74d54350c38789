package sim

import (
	"strings"

	"github.com/pkg/errors"
)

// State is the observable lifecycle state of a simulated process.
type State string

const (
	StateReady      State = "ready"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateTerminated State = "terminated"
)

func (s State) String() string { return string(s) }

// Priority is a display label. It has no effect on scheduling.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) String() string { return string(p) }

// ParsePriority accepts any casing of low, medium or high. An empty string
// yields PriorityLow.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	}
	return "", errors.Wrapf(ErrInvalidSpec, "unknown priority %q", s)
}
