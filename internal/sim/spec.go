package sim

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	MinThreads      = 1
	MaxThreads      = 16
	DefaultMemoryMB = 50
)

var (
	ErrInvalidSpec = errors.New("invalid process spec")
)

// Spec is the user-chosen footprint of a simulated process. It is fixed once
// the process is created.
type Spec struct {
	Name         string
	MemoryMB     int
	Threads      int
	CPUConsuming bool
	Priority     Priority
}

// Validate checks the spec against the allowed ranges. maxMemoryMB <= 0
// disables the upper memory bound.
func (s Spec) Validate(maxMemoryMB int) error {
	if s.MemoryMB < 0 {
		return errors.Wrapf(ErrInvalidSpec, "memory must not be negative, got %d MB", s.MemoryMB)
	}
	if maxMemoryMB > 0 && s.MemoryMB > maxMemoryMB {
		return errors.Wrapf(ErrInvalidSpec, "memory %d MB exceeds limit of %d MB", s.MemoryMB, maxMemoryMB)
	}
	if s.Threads < MinThreads || s.Threads > MaxThreads {
		return errors.Wrapf(ErrInvalidSpec, "threads must be between %d and %d, got %d", MinThreads, MaxThreads, s.Threads)
	}
	if _, err := ParsePriority(string(s.Priority)); err != nil {
		return err
	}
	return nil
}

// ParseMemoryMB reads a memory size typed by a user. Blank input means
// DefaultMemoryMB; anything that is not a whole number is rejected.
func ParseMemoryMB(input string) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return DefaultMemoryMB, nil
	}
	mb, err := strconv.Atoi(input)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidSpec, "memory %q is not a number", input)
	}
	return mb, nil
}
