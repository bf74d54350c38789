package sim

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Environment keys used to hand a BodyConfig to the child process.
const (
	EnvBody     = "PROCSIM_BODY"
	EnvMemoryMB = "PROCSIM_MEMORY_MB"
	EnvThreads  = "PROCSIM_THREADS"
	EnvCPU      = "PROCSIM_CPU"
)

// Bytes written on the control pipe.
const (
	signalStop byte = 'p'
	signalGo   byte = 'r'
)

// busyIterations is sized so a CPU-consuming worker burns tens of
// milliseconds per cycle.
const (
	pageSize       = 4096
	busyIterations = 50_000_000
	workerInterval = 100 * time.Millisecond
	bodyInterval   = 500 * time.Millisecond
)

// BodyConfig is what the child needs to know to build its footprint.
type BodyConfig struct {
	MemoryMB     int
	Threads      int
	CPUConsuming bool
}

func (c BodyConfig) Environ() []string {
	return []string{
		EnvBody + "=1",
		EnvMemoryMB + "=" + strconv.Itoa(c.MemoryMB),
		EnvThreads + "=" + strconv.Itoa(c.Threads),
		EnvCPU + "=" + strconv.FormatBool(c.CPUConsuming),
	}
}

func BodyConfigFromEnv() (BodyConfig, error) {
	mb, err := strconv.Atoi(os.Getenv(EnvMemoryMB))
	if err != nil {
		return BodyConfig{}, errors.Wrapf(err, "parsing %s", EnvMemoryMB)
	}
	threads, err := strconv.Atoi(os.Getenv(EnvThreads))
	if err != nil {
		return BodyConfig{}, errors.Wrapf(err, "parsing %s", EnvThreads)
	}
	cpu, err := strconv.ParseBool(os.Getenv(EnvCPU))
	if err != nil {
		return BodyConfig{}, errors.Wrapf(err, "parsing %s", EnvCPU)
	}
	return BodyConfig{MemoryMB: mb, Threads: threads, CPUConsuming: cpu}, nil
}

// ControlFile is the pipe the host hands to the child as its first extra
// file (fd 3).
func ControlFile() *os.File {
	return os.NewFile(3, "procsim-control")
}

// RunBody is the entry point of a simulated process. It commits the
// requested memory, starts the workers and then idles until ctx is done or
// the control stream ends, which only happens when the host goes away.
func RunBody(ctx context.Context, cfg BodyConfig, control io.Reader, log *zap.Logger) error {
	return runBody(ctx, cfg, control, log, workload{iterations: busyIterations})
}

// workload is what one worker cycle does when CPU consumption is on.
type workload struct {
	iterations int
	// spun, when set, is called after every busy loop.
	spun func(id int)
}

func runBody(ctx context.Context, cfg BodyConfig, control io.Reader, log *zap.Logger, wl workload) error {
	if cfg.MemoryMB < 0 || cfg.Threads < MinThreads || cfg.Threads > MaxThreads {
		return errors.Wrapf(ErrInvalidSpec, "body config %+v", cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mem := commit(cfg.MemoryMB)
	log.Info("memory committed",
		zap.String("size", humanize.IBytes(uint64(len(mem)))),
		zap.Int("pages", (len(mem)+pageSize-1)/pageSize))

	gate := NewGate()
	go func() {
		readControl(control, gate, log)
		cancel()
	}()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			work(ctx, id, mem, cfg.CPUConsuming, gate, wl)
		}(i)
	}
	log.Info("workers started", zap.Int("threads", cfg.Threads), zap.Bool("cpu", cfg.CPUConsuming))

	for {
		if err := gate.Wait(ctx); err != nil {
			break
		}
		if !sleep(ctx, bodyInterval) {
			break
		}
	}

	wg.Wait()
	log.Info("control stream closed, exiting")
	return nil
}

// commit allocates mb MiB and writes one byte per page so the pages are
// resident rather than merely reserved.
func commit(mb int) []byte {
	mem := make([]byte, mb*1024*1024)
	for i := 0; i < len(mem); i += pageSize {
		mem[i] = 1
	}
	return mem
}

func readControl(control io.Reader, gate *Gate, log *zap.Logger) {
	buf := make([]byte, 1)
	for {
		_, err := control.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Warn("reading control pipe", zap.Error(err))
			}
			return
		}
		switch buf[0] {
		case signalStop:
			gate.Close()
			log.Debug("paused")
		case signalGo:
			gate.Open()
			log.Debug("resumed")
		}
	}
}

func work(ctx context.Context, id int, mem []byte, cpu bool, gate *Gate, wl workload) {
	for {
		if err := gate.Wait(ctx); err != nil {
			return
		}
		if cpu {
			spin(id, mem, wl.iterations)
			if wl.spun != nil {
				wl.spun(id)
			}
		}
		if !sleep(ctx, workerInterval) {
			return
		}
	}
}

// spin burns a fixed number of iterations. Each worker writes the result
// into its own page so the loop is not optimized away.
func spin(id int, mem []byte, iterations int) {
	var acc uint64
	for i := 0; i < iterations; i++ {
		acc += uint64(i) ^ acc>>3
	}
	if len(mem) > 0 {
		mem[(id*pageSize)%len(mem)] = byte(acc)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
