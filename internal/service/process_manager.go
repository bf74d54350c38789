package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"procsim/internal/config"
	"procsim/internal/metrics"
	"procsim/internal/models"
	"procsim/internal/sim"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrProcessAlive    = errors.New("process still alive")
	ErrDuplicatePid    = errors.New("pid already registered")
)

type LogBuffer struct {
	mu         sync.RWMutex
	entries    []models.LogEntry
	maxEntries int
}

func NewLogBuffer(maxEntries int) *LogBuffer {
	return &LogBuffer{
		entries:    make([]models.LogEntry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

func (lb *LogBuffer) Add(entry models.LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, entry)
	if len(lb.entries) > lb.maxEntries {
		lb.entries = lb.entries[len(lb.entries)-lb.maxEntries:]
	}
}

func (lb *LogBuffer) GetLast(n int) []models.LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if n <= 0 || len(lb.entries) == 0 {
		return []models.LogEntry{}
	}

	start := 0
	if len(lb.entries) > n {
		start = len(lb.entries) - n
	}

	result := make([]models.LogEntry, len(lb.entries[start:]))
	copy(result, lb.entries[start:])
	return result
}

// CreateRequest carries user input for a new simulated process. Nil fields
// take their defaults: 50 MB of memory and CPU consumption on.
type CreateRequest struct {
	Name         string `json:"name"`
	MemoryMB     *int   `json:"memory_mb"`
	Threads      int    `json:"threads"`
	CPUConsuming *bool  `json:"cpu_consuming"`
	Priority     string `json:"priority"`
}

type Deps struct {
	Launcher sim.Launcher
	Sampler  sim.Sampler
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// ProcessManager is the registry of simulated processes, keyed by pid, and
// the poll loop that refreshes them.
type ProcessManager struct {
	mu        sync.RWMutex
	processes map[int]*sim.Handle
	nameSeq   int
	polled    bool
	logs      *LogBuffer

	cfg      config.SimulationConfig
	launcher sim.Launcher
	opts     sim.Options
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	zlog     *zap.Logger

	subMu   sync.Mutex
	subs    map[int]chan []models.Process
	nextSub int
}

func NewProcessManager(cfg config.SimulationConfig, deps Deps) *ProcessManager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &ProcessManager{
		processes: make(map[int]*sim.Handle),
		logs:      NewLogBuffer(1000),
		cfg:       cfg,
		launcher:  deps.Launcher,
		opts: sim.Options{
			Clock:            deps.Clock,
			Sampler:          deps.Sampler,
			TerminateTimeout: cfg.TerminateTimeout,
			MaxMemoryMB:      cfg.MaxMemoryMB,
			Log:              deps.Log,
		},
		clock:   deps.Clock,
		metrics: deps.Metrics,
		zlog:    deps.Log,
		subs:    make(map[int]chan []models.Process),
	}
}

func (pm *ProcessManager) log(level, message string, processName string) {
	entry := models.LogEntry{
		Timestamp: pm.clock.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Process:   processName,
	}
	pm.logs.Add(entry)
}

func (pm *ProcessManager) CreateProcess(req CreateRequest) (models.Process, error) {
	spec, err := pm.specFor(req)
	if err != nil {
		return models.Process{}, err
	}

	h, err := sim.Start(spec, pm.launcher, pm.opts)
	if err != nil {
		if !errors.Is(err, sim.ErrInvalidSpec) {
			pm.log("error", fmt.Sprintf("Failed to start process %s: %v", spec.Name, err), spec.Name)
		}
		return models.Process{}, err
	}

	pm.mu.Lock()
	if _, ok := pm.processes[h.Pid()]; ok {
		pm.mu.Unlock()
		h.Terminate()
		return models.Process{}, errors.Wrapf(ErrDuplicatePid, "pid %d", h.Pid())
	}
	pm.processes[h.Pid()] = h
	pm.mu.Unlock()

	pm.metrics.Created()
	pm.log("info", fmt.Sprintf("Process %s started with PID %d", spec.Name, h.Pid()), spec.Name)
	return toModel(h, false), nil
}

func (pm *ProcessManager) specFor(req CreateRequest) (sim.Spec, error) {
	name := req.Name
	if name == "" {
		pm.mu.Lock()
		pm.nameSeq++
		name = fmt.Sprintf("Proc%d", pm.nameSeq)
		pm.mu.Unlock()
	}

	memoryMB := sim.DefaultMemoryMB
	if req.MemoryMB != nil {
		memoryMB = *req.MemoryMB
	}
	threads := req.Threads
	if threads == 0 {
		threads = sim.MinThreads
	}
	cpu := true
	if req.CPUConsuming != nil {
		cpu = *req.CPUConsuming
	}
	prio, err := sim.ParsePriority(req.Priority)
	if err != nil {
		return sim.Spec{}, err
	}

	return sim.Spec{
		Name:         name,
		MemoryMB:     memoryMB,
		Threads:      threads,
		CPUConsuming: cpu,
		Priority:     prio,
	}, nil
}

func (pm *ProcessManager) handle(pid int) (*sim.Handle, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	h, ok := pm.processes[pid]
	if !ok {
		return nil, ErrProcessNotFound
	}
	return h, nil
}

func (pm *ProcessManager) PauseProcess(pid int) (models.Process, error) {
	h, err := pm.handle(pid)
	if err != nil {
		return models.Process{}, err
	}
	h.Pause()
	pm.log("info", fmt.Sprintf("Process %s paused", h.Spec().Name), h.Spec().Name)
	return toModel(h, false), nil
}

func (pm *ProcessManager) ResumeProcess(pid int) (models.Process, error) {
	h, err := pm.handle(pid)
	if err != nil {
		return models.Process{}, err
	}
	h.Resume()
	pm.log("info", fmt.Sprintf("Process %s resumed", h.Spec().Name), h.Spec().Name)
	return toModel(h, false), nil
}

// ToggleProcess pauses a running process and resumes a paused one. Other
// states are left alone.
func (pm *ProcessManager) ToggleProcess(pid int) (models.Process, error) {
	h, err := pm.handle(pid)
	if err != nil {
		return models.Process{}, err
	}
	switch h.State() {
	case sim.StateRunning:
		return pm.PauseProcess(pid)
	case sim.StatePaused:
		return pm.ResumeProcess(pid)
	}
	return toModel(h, false), nil
}

// TerminateProcess kills the process and drops it from the registry.
func (pm *ProcessManager) TerminateProcess(pid int) (models.Process, error) {
	h, err := pm.handle(pid)
	if err != nil {
		return models.Process{}, err
	}
	name := h.Spec().Name

	pm.log("info", fmt.Sprintf("Terminating process %s (PID %d)", name, pid), name)
	h.Terminate()
	pm.metrics.Terminated()
	if h.Stuck() {
		pm.metrics.Stuck()
		pm.log("warning", fmt.Sprintf("Process %s did not exit in time", name), name)
	}

	pm.mu.Lock()
	delete(pm.processes, pid)
	pm.mu.Unlock()

	pm.log("info", fmt.Sprintf("Process %s terminated", name), name)
	return toModel(h, true), nil
}

// DismissProcess removes a record whose process has already ended.
func (pm *ProcessManager) DismissProcess(pid int) error {
	h, err := pm.handle(pid)
	if err != nil {
		return err
	}
	if h.State() != sim.StateTerminated {
		return ErrProcessAlive
	}

	pm.mu.Lock()
	delete(pm.processes, pid)
	pm.mu.Unlock()

	pm.log("info", fmt.Sprintf("Process %s dismissed", h.Spec().Name), h.Spec().Name)
	return nil
}

func (pm *ProcessManager) handles() []*sim.Handle {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make([]*sim.Handle, 0, len(pm.processes))
	for _, h := range pm.processes {
		result = append(result, h)
	}
	return result
}

// RefreshAll is one poll tick: every handle re-reads its process, expired
// records are swept and subscribers get the new snapshot.
func (pm *ProcessManager) RefreshAll() {
	counts := make(map[sim.State]int)
	for _, h := range pm.handles() {
		if h.Refresh() {
			pm.log("warning", fmt.Sprintf("Process %s (PID %d) finished", h.Spec().Name, h.Pid()), h.Spec().Name)
		}

		if pm.expired(h) {
			pm.mu.Lock()
			delete(pm.processes, h.Pid())
			pm.mu.Unlock()
			pm.log("info", fmt.Sprintf("Process %s removed after retention", h.Spec().Name), h.Spec().Name)
			continue
		}
		counts[h.State()]++
	}

	pm.mu.Lock()
	pm.polled = true
	pm.mu.Unlock()

	pm.metrics.Tick(counts)
	pm.publish(pm.GetProcesses())
}

// Polled reports whether RefreshAll has run at least once.
func (pm *ProcessManager) Polled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.polled
}

func (pm *ProcessManager) expired(h *sim.Handle) bool {
	if pm.cfg.FinishedRetention <= 0 {
		return false
	}
	info := h.Info()
	return info.State == sim.StateTerminated && pm.clock.Since(info.FinishedAt) >= pm.cfg.FinishedRetention
}

// Run drives RefreshAll on the configured poll interval until ctx is done.
func (pm *ProcessManager) Run(ctx context.Context) error {
	ticker := pm.clock.NewTicker(pm.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			pm.RefreshAll()
		}
	}
}

// Subscribe returns a channel that receives the process list after every
// poll tick. Slow subscribers miss intermediate snapshots.
func (pm *ProcessManager) Subscribe() (<-chan []models.Process, func()) {
	pm.subMu.Lock()
	defer pm.subMu.Unlock()

	id := pm.nextSub
	pm.nextSub++
	ch := make(chan []models.Process, 1)
	pm.subs[id] = ch

	return ch, func() {
		pm.subMu.Lock()
		defer pm.subMu.Unlock()
		if _, ok := pm.subs[id]; ok {
			delete(pm.subs, id)
			close(ch)
		}
	}
}

func (pm *ProcessManager) publish(procs []models.Process) {
	pm.subMu.Lock()
	defer pm.subMu.Unlock()

	for _, ch := range pm.subs {
		select {
		case <-ch:
		default:
		}
		ch <- procs
	}
}

// GetProcesses lists the registry newest first.
func (pm *ProcessManager) GetProcesses() []models.Process {
	hs := pm.handles()
	sort.Slice(hs, func(i, j int) bool {
		a, b := hs[i].Info(), hs[j].Info()
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.Pid > b.Pid
	})

	result := make([]models.Process, 0, len(hs))
	for _, h := range hs {
		result = append(result, toModel(h, false))
	}
	return result
}

func (pm *ProcessManager) GetProcess(pid int) (models.Process, bool) {
	h, err := pm.handle(pid)
	if err != nil {
		return models.Process{}, false
	}
	return toModel(h, true), true
}

func (pm *ProcessManager) GetProcessLogs(pid int) ([]models.LogEntry, error) {
	h, err := pm.handle(pid)
	if err != nil {
		return nil, err
	}
	return logEntries(h), nil
}

func (pm *ProcessManager) GetLogs(limit int) []models.LogEntry {
	return pm.logs.GetLast(limit)
}

func (pm *ProcessManager) GetStats() (activeProcesses, totalProcesses int) {
	for _, h := range pm.handles() {
		totalProcesses++
		if h.State() != sim.StateTerminated {
			activeProcesses++
		}
	}
	return activeProcesses, totalProcesses
}

// StartAll spawns the processes listed in the configuration file.
func (pm *ProcessManager) StartAll(presets []config.ProcessConfig) {
	for _, p := range presets {
		p := p
		req := CreateRequest{
			Name:         p.Name,
			MemoryMB:     p.MemoryMB,
			Threads:      p.Threads,
			CPUConsuming: p.CPUConsuming,
			Priority:     p.Priority,
		}
		pm.log("info", fmt.Sprintf("Auto-starting process %s", p.Name), p.Name)
		if _, err := pm.CreateProcess(req); err != nil {
			pm.log("error", fmt.Sprintf("Failed to auto-start %s: %v", p.Name, err), p.Name)
			pm.zlog.Error("auto-start failed", zap.String("name", p.Name), zap.Error(err))
		}
	}
}

// StopAll terminates every process still in the registry.
func (pm *ProcessManager) StopAll() {
	for _, h := range pm.handles() {
		pm.log("info", fmt.Sprintf("Stopping process %s", h.Spec().Name), h.Spec().Name)
		if _, err := pm.TerminateProcess(h.Pid()); err != nil {
			pm.log("error", fmt.Sprintf("Failed to stop %s: %v", h.Spec().Name, err), h.Spec().Name)
		}
	}
}

func toModel(h *sim.Handle, withLog bool) models.Process {
	info := h.Info()

	var threadIDs []string
	if info.State != sim.StateTerminated {
		threadIDs = make([]string, info.Threads)
		for i := range threadIDs {
			threadIDs[i] = fmt.Sprintf("T%d", i+1)
		}
	}

	p := models.Process{
		Pid:            info.Pid,
		Name:           info.Name,
		State:          info.State.String(),
		Priority:       info.Priority.String(),
		Progress:       info.Progress,
		MemoryMB:       info.MemoryMB,
		Threads:        info.Threads,
		CPUConsuming:   info.CPUConsuming,
		ResidentBytes:  info.Sample.RSSBytes,
		Resident:       humanize.IBytes(info.Sample.RSSBytes),
		OSThreads:      info.Sample.NumThreads,
		ThreadIDs:      threadIDs,
		ElapsedSeconds: int64(info.Elapsed / time.Second),
		Uptime:         formatDuration(info.Elapsed),
		StartedAt:      info.StartedAt.Format(time.RFC3339),
	}
	if withLog {
		p.Log = logEntries(h)
	}
	return p
}

func logEntries(h *sim.Handle) []models.LogEntry {
	entries := h.Log()
	result := make([]models.LogEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, models.LogEntry{
			Timestamp: e.Time.Format(time.RFC3339),
			Message:   e.Message,
			Level:     e.Level,
			Process:   h.Spec().Name,
		})
	}
	return result
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
