package sim

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

// Process is the host's grip on a running simulated process.
type Process interface {
	Pid() int
	// SetPaused flips the pause signal observed by the child's workers.
	SetPaused(paused bool) error
	Kill() error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

type Launcher interface {
	Launch(spec Spec) (Process, error)
}

// ExecLauncher starts each simulated process as a re-exec of a binary that
// runs RunBody when it sees EnvBody in its environment.
type ExecLauncher struct {
	Path string
	Args []string
	Env  []string
	Log  *zap.Logger
}

var _ Launcher = &ExecLauncher{}

// NewExecLauncher re-execs the running binary with the hidden body command.
func NewExecLauncher(log *zap.Logger) (*ExecLauncher, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "locating own executable")
	}
	return &ExecLauncher{Path: path, Args: []string{"body"}, Log: log}, nil
}

func (l *ExecLauncher) Launch(spec Spec) (Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "creating control pipe")
	}

	cfg := BodyConfig{MemoryMB: spec.MemoryMB, Threads: spec.Threads, CPUConsuming: spec.CPUConsuming}
	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = append(append(os.Environ(), l.Env...), cfg.Environ()...)
	cmd.ExtraFiles = []*os.File{r}
	cmd.SysProcAttr = &syscall.SysProcAttr{}
	setSysProcAttr(cmd.SysProcAttr)

	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("name", spec.Name))
	stdout := &zapio.Writer{Log: log, Level: zapcore.InfoLevel}
	stderr := &zapio.Writer{Log: log, Level: zapcore.DebugLevel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, errors.Wrapf(err, "starting simulated process %q", spec.Name)
	}
	r.Close()

	p := &execProcess{
		cmd:     cmd,
		control: w,
		done:    make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.control.Close()
		p.mu.Unlock()
		_ = stdout.Close()
		_ = stderr.Close()
		log.Debug("simulated process reaped", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	control *os.File
	done    chan struct{}
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) SetPaused(paused bool) error {
	b := signalGo
	if paused {
		b = signalStop
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.control.Write([]byte{b})
	return err
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return killProcessGroup(p.cmd)
}

func (p *execProcess) Done() <-chan struct{} { return p.done }
