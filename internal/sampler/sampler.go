package sampler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	ErrNotFound = errors.New("process not found")
)

// Sample is a point-in-time reading of one OS process.
type Sample struct {
	Alive      bool
	RSSBytes   uint64
	NumThreads int32
}

// ProcessSampler reads per-process figures through gopsutil.
type ProcessSampler struct {
	timeout time.Duration
}

func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{timeout: 2 * time.Second}
}

// Sample returns ErrNotFound when pid no longer exists, including when it
// disappears halfway through the reading. Zombies are reported as not alive.
func (s *ProcessSampler) Sample(pid int) (Sample, error) {
	if pid <= 0 {
		return Sample{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Sample{}, notFound(err)
	}

	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return Sample{}, notFound(err)
	}
	if status, err := p.StatusWithContext(ctx); err == nil {
		for _, st := range status {
			if st == process.Zombie {
				return Sample{}, ErrNotFound
			}
		}
	}

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Sample{}, notFound(err)
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return Sample{}, notFound(err)
	}

	return Sample{Alive: true, RSSBytes: mem.RSS, NumThreads: threads}, nil
}

func notFound(err error) error {
	if err == nil {
		return ErrNotFound
	}
	return errors.Wrap(ErrNotFound, err.Error())
}
