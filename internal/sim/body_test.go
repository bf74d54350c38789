package sim

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBodyRunsUntilControlCloses(t *testing.T) {
	r, w := io.Pipe()
	cfg := BodyConfig{MemoryMB: 1, Threads: 2, CPUConsuming: true}

	done := make(chan error, 1)
	go func() {
		done <- runBody(context.Background(), cfg, r, zaptest.NewLogger(t), workload{iterations: 1000})
	}()

	_, err := w.Write([]byte{signalStop})
	require.NoError(t, err)
	_, err = w.Write([]byte{signalGo})
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("body returned while the host was still attached")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, w.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("body did not exit after control pipe closed")
	}
}

func TestBodyExitsWhilePaused(t *testing.T) {
	r, w := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- RunBody(context.Background(), BodyConfig{Threads: 1}, r, zaptest.NewLogger(t))
	}()

	_, err := w.Write([]byte{signalStop})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("paused body did not exit")
	}
}

func TestStopSignalHaltsWorkers(t *testing.T) {
	r, w := io.Pipe()
	var spins atomic.Int64
	wl := workload{iterations: 1000, spun: func(int) { spins.Add(1) }}
	cfg := BodyConfig{Threads: 4, CPUConsuming: true}

	done := make(chan error, 1)
	go func() {
		done <- runBody(context.Background(), cfg, r, zaptest.NewLogger(t), wl)
	}()
	defer func() {
		_ = w.Close()
		<-done
	}()

	require.Eventually(t, func() bool { return spins.Load() >= 8 }, 2*time.Second, 10*time.Millisecond)

	_, err := w.Write([]byte{signalStop})
	require.NoError(t, err)

	// A worker may be past the gate when the byte lands; give it one cycle.
	time.Sleep(3 * workerInterval)
	paused := spins.Load()
	time.Sleep(5 * workerInterval)
	assert.Equal(t, paused, spins.Load(), "workers kept spinning while paused")

	_, err = w.Write([]byte{signalGo})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return spins.Load() >= paused+8 }, 2*time.Second, 10*time.Millisecond)
}

func TestBodyRejectsBadConfig(t *testing.T) {
	r, _ := io.Pipe()
	err := RunBody(context.Background(), BodyConfig{Threads: 0}, r, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestCommitTouchesEveryPage(t *testing.T) {
	mem := commit(1)
	require.Len(t, mem, 1024*1024)
	for i := 0; i < len(mem); i += pageSize {
		if mem[i] != 1 {
			t.Fatalf("page at offset %d not touched", i)
		}
	}
}

func TestBodyConfigRoundTripsThroughEnv(t *testing.T) {
	cfg := BodyConfig{MemoryMB: 64, Threads: 3, CPUConsuming: true}
	for _, kv := range cfg.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		t.Setenv(k, v)
	}

	got, err := BodyConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
