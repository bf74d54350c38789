package sim

import (
	"sync"

	"github.com/pkg/errors"

	"procsim/internal/sampler"
)

// FakeProcess stands in for a child process in tests. It stays alive until
// Kill or Exit is called; with IgnoreKill set it survives Kill.
type FakeProcess struct {
	mu         sync.Mutex
	pid        int
	done       chan struct{}
	paused     bool
	signals    []bool
	kills      int
	IgnoreKill bool
}

var _ Process = &FakeProcess{}

func NewFakeProcess(pid int) *FakeProcess {
	return &FakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *FakeProcess) Pid() int { return p.pid }

func (p *FakeProcess) SetPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitedLocked() {
		return errors.New("write on closed control pipe")
	}
	p.paused = paused
	p.signals = append(p.signals, paused)
	return nil
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	if !p.IgnoreKill && !p.exitedLocked() {
		close(p.done)
	}
	return nil
}

// Exit simulates the process ending by itself or being killed out of band.
func (p *FakeProcess) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exitedLocked() {
		close(p.done)
	}
}

func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *FakeProcess) Signals() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.signals...)
}

func (p *FakeProcess) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitedLocked()
}

func (p *FakeProcess) exitedLocked() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// FakeLauncher hands out FakeProcesses with increasing pids.
type FakeLauncher struct {
	mu       sync.Mutex
	nextPid  int
	procs    map[int]*FakeProcess
	launched []Spec
	Err      error
}

var _ Launcher = &FakeLauncher{}

func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{nextPid: 1000, procs: make(map[int]*FakeProcess)}
}

func (l *FakeLauncher) Launch(spec Spec) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	l.nextPid++
	p := NewFakeProcess(l.nextPid)
	l.procs[p.pid] = p
	l.launched = append(l.launched, spec)
	return p, nil
}

func (l *FakeLauncher) Process(pid int) *FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[pid]
}

func (l *FakeLauncher) Launched() []Spec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Spec(nil), l.launched...)
}

// Sampler returns a Sampler that reports a launched process alive until it
// has exited.
func (l *FakeLauncher) Sampler() Sampler {
	return fakeSampler{l: l}
}

type fakeSampler struct {
	l *FakeLauncher
}

func (s fakeSampler) Sample(pid int) (sampler.Sample, error) {
	p := s.l.Process(pid)
	if p == nil || p.Exited() {
		return sampler.Sample{}, sampler.ErrNotFound
	}
	return sampler.Sample{Alive: true, RSSBytes: 50 * 1024 * 1024, NumThreads: 6}, nil
}
