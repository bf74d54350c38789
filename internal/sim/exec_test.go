//go:build linux

package sim

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"procsim/internal/sampler"
)

func TestExecLifecycle(t *testing.T) {
	f := newExecFixture(t)
	h := f.start(Spec{Name: "real", MemoryMB: 16, Threads: 2, CPUConsuming: false})

	require.Eventually(t, func() bool {
		h.Refresh()
		return h.State() == StateRunning && h.Info().Sample.RSSBytes >= 16*1024*1024
	}, 10*time.Second, 50*time.Millisecond)
	assert.Greater(t, h.Info().Sample.NumThreads, int32(0))

	h.Pause()
	h.Refresh()
	assert.Equal(t, StatePaused, h.State())

	h.Resume()
	h.Refresh()
	assert.Equal(t, StateRunning, h.State())

	h.Terminate()
	assert.Equal(t, StateTerminated, h.State())
	assert.Equal(t, 100, h.Progress())
	assert.False(t, h.Stuck())

	select {
	case <-h.Done():
	default:
		t.Fatal("process still running after Terminate")
	}
	_, err := f.sampler.Sample(h.Pid())
	assert.ErrorIs(t, err, sampler.ErrNotFound)
}

func TestExecOutOfBandKill(t *testing.T) {
	f := newExecFixture(t)
	h := f.start(Spec{Name: "victim", MemoryMB: 1, Threads: 1, CPUConsuming: true})
	h.Refresh()
	require.Equal(t, StateRunning, h.State())

	require.NoError(t, unix.Kill(h.Pid(), unix.SIGKILL))
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("killed process was never reaped")
	}

	before := len(h.Log())
	h.Refresh()
	h.Refresh()
	assert.Equal(t, StateTerminated, h.State())
	assert.Equal(t, 100, h.Progress())
	require.Len(t, h.Log(), before+1)
	assert.Equal(t, "process finished", h.Log()[before].Message)
}

func TestExecPausedProcessStillTerminates(t *testing.T) {
	f := newExecFixture(t)
	h := f.start(Spec{Name: "sleepy", Threads: 4, CPUConsuming: true})
	h.Refresh()
	h.Pause()

	h.Terminate()
	assert.Equal(t, StateTerminated, h.State())
	assert.False(t, h.Stuck())
}

type execFixture struct {
	t        *testing.T
	launcher *ExecLauncher
	sampler  *sampler.ProcessSampler
}

func newExecFixture(t *testing.T) *execFixture {
	return &execFixture{
		t: t,
		launcher: &ExecLauncher{
			Path: os.Args[0],
			Args: []string{"-test.run=^$"},
			Log:  zaptest.NewLogger(t),
		},
		sampler: sampler.NewProcessSampler(),
	}
}

func (f *execFixture) start(spec Spec) *Handle {
	h, err := Start(spec, f.launcher, Options{Sampler: f.sampler, Log: zaptest.NewLogger(f.t)})
	require.NoError(f.t, err)
	f.t.Cleanup(h.Terminate)
	return h
}
