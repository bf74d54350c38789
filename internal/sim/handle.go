package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"procsim/internal/sampler"
)

const DefaultTerminateTimeout = 5 * time.Second

// Sampler reports liveness and resource usage of an OS process. A pid that
// has gone away is reported through an error, never a panic.
type Sampler interface {
	Sample(pid int) (sampler.Sample, error)
}

type Options struct {
	Clock            clockwork.Clock
	Sampler          Sampler
	TerminateTimeout time.Duration
	MaxMemoryMB      int
	Log              *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Sampler == nil {
		o.Sampler = sampler.NewProcessSampler()
	}
	if o.TerminateTimeout <= 0 {
		o.TerminateTimeout = DefaultTerminateTimeout
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return o
}

type Entry struct {
	Time    time.Time
	Level   string
	Message string
}

// Info is a consistent copy of a handle's state.
type Info struct {
	Spec
	Pid        int
	State      State
	Progress   int
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
	Sample     sampler.Sample
	Stuck      bool
}

// Handle is the host-side record and control surface of one simulated
// process. All methods are safe to call concurrently; none of them report
// errors, since every race with process death resolves to StateTerminated.
type Handle struct {
	mu sync.Mutex

	spec    Spec
	proc    Process
	pid     int
	clock   clockwork.Clock
	sampler Sampler
	timeout time.Duration
	log     *zap.Logger

	state      State
	progress   int
	paused     bool
	startedAt  time.Time
	finishedAt time.Time
	entries    []Entry
	sample     sampler.Sample
	stuck      bool
	// set while Terminate waits for the kill; Refresh leaves the state alone
	terminating bool
}

// Start validates spec, launches its backing process and returns a handle in
// StateReady. Nothing is left running if an error is returned.
func Start(spec Spec, launcher Launcher, opts Options) (*Handle, error) {
	opts = opts.withDefaults()
	if err := spec.Validate(opts.MaxMemoryMB); err != nil {
		return nil, err
	}
	if spec.Priority == "" {
		spec.Priority = PriorityLow
	}

	startedAt := opts.Clock.Now()
	proc, err := launcher.Launch(spec)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		spec:      spec,
		proc:      proc,
		pid:       proc.Pid(),
		clock:     opts.Clock,
		sampler:   opts.Sampler,
		timeout:   opts.TerminateTimeout,
		state:     StateReady,
		startedAt: startedAt,
	}
	h.log = opts.Log.With(zap.Int("pid", h.pid), zap.String("name", spec.Name))
	h.appendLocked("info", "process created")
	h.log.Info("simulated process created",
		zap.String("memory", humanize.IBytes(uint64(spec.MemoryMB)*1024*1024)),
		zap.Int("threads", spec.Threads),
		zap.Bool("cpu", spec.CPUConsuming),
		zap.Stringer("priority", spec.Priority))
	return h, nil
}

func (h *Handle) Pid() int { return h.pid }

func (h *Handle) Spec() Spec { return h.spec }

// Done is closed when the backing OS process has exited.
func (h *Handle) Done() <-chan struct{} { return h.proc.Done() }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Progress() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

func (h *Handle) Log() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Elapsed is the time since creation, truncated to whole seconds.
func (h *Handle) Elapsed() time.Duration {
	return h.clock.Since(h.startedAt).Truncate(time.Second)
}

func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Info{
		Spec:       h.spec,
		Pid:        h.pid,
		State:      h.state,
		Progress:   h.progress,
		StartedAt:  h.startedAt,
		FinishedAt: h.finishedAt,
		Elapsed:    h.Elapsed(),
		Sample:     h.sample,
		Stuck:      h.stuck,
	}
}

// Refresh re-derives the state from the OS. It is meant to be called once
// per poll tick. It reports whether this call found that the process had
// exited on its own.
func (h *Handle) Refresh() (finished bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateTerminated {
		h.sample = sampler.Sample{}
		return false
	}
	if h.terminating {
		return false
	}

	if !h.aliveLocked() {
		h.appendLocked("info", "process finished")
		h.log.Info("simulated process finished on its own")
		h.finishLocked()
		return true
	}

	if h.paused {
		h.state = StatePaused
		return false
	}
	h.state = StateRunning
	h.progress = min(h.progress+h.spec.Threads, 100)
	return false
}

// Pause stops the workers at their next check. It does nothing if the
// process is already gone.
func (h *Handle) Pause() {
	h.setPaused(true)
}

func (h *Handle) Resume() {
	h.setPaused(false)
}

func (h *Handle) setPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateTerminated || h.terminating || !h.aliveLocked() {
		return
	}
	if err := h.proc.SetPaused(paused); err != nil {
		h.log.Debug("writing pause signal", zap.Bool("paused", paused), zap.Error(err))
	}
	h.paused = paused
	if paused {
		h.state = StatePaused
	} else {
		h.state = StateRunning
	}
}

// Terminate kills the backing process and waits for it to exit, at most
// for the configured timeout. It is idempotent and always leaves the handle
// in StateTerminated with a new log entry. A process that already outlived
// one kill is not waited on again.
func (h *Handle) Terminate() {
	h.mu.Lock()
	wait := !h.stuck && !h.terminating
	h.terminating = true
	h.mu.Unlock()

	if wait {
		select {
		case <-h.proc.Done():
		default:
			h.killAndWait()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if wait {
		h.terminating = false
	}
	h.appendLocked("info", "process terminated")
	h.finishLocked()
}

func (h *Handle) killAndWait() {
	if err := h.proc.Kill(); err != nil {
		h.log.Warn("killing simulated process", zap.Error(err))
	}
	select {
	case <-h.proc.Done():
		return
	case <-h.clock.After(h.timeout):
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.stuck = true
	h.appendLocked("warning", fmt.Sprintf("process did not exit within %s", h.timeout))
	h.log.Error("simulated process did not exit after kill", zap.Duration("timeout", h.timeout))
}

// Stuck reports whether a terminate gave up waiting for the process.
func (h *Handle) Stuck() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stuck
}

func (h *Handle) aliveLocked() bool {
	select {
	case <-h.proc.Done():
		h.sample = sampler.Sample{}
		return false
	default:
	}
	s, err := h.sampler.Sample(h.pid)
	if err != nil || !s.Alive {
		h.sample = sampler.Sample{}
		return false
	}
	h.sample = s
	return true
}

func (h *Handle) finishLocked() {
	h.state = StateTerminated
	h.progress = 100
	h.sample = sampler.Sample{}
	if h.finishedAt.IsZero() {
		h.finishedAt = h.clock.Now()
	}
}

func (h *Handle) appendLocked(level, msg string) {
	h.entries = append(h.entries, Entry{Time: h.clock.Now(), Level: level, Message: msg})
}
