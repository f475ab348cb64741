package pulsemeter

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer 显示 goroutine 和测试同时访问
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDone(t *testing.T, s *PulseSystem) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("system did not finish")
	}
}

func TestPulseSystem_SyntheticFast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source = SourceSynthetic
	cfg.Synthetic.BPM = 75
	cfg.System.Fast = true
	cfg.System.Duration = 30 * time.Second
	cfg.Trace.File = filepath.Join(t.TempDir(), "beats.csv")

	var out bytes.Buffer
	sys := NewPulseSystem(cfg, quietLogger(), &out)
	require.NoError(t, sys.Start(context.Background()))
	waitDone(t, sys)

	sum := sys.Stop()
	assert.Equal(t, uint64(15000), sys.Monitor().Ticks())
	assert.Equal(t, 75, sys.Monitor().BPM())
	assert.Greater(t, sum.Beats, 30)
	assert.Zero(t, sum.Dropouts)
	assert.InDelta(t, 75, sum.MeanBPM, 0.5)
	assert.Less(t, sum.SDNN, 5.0)
	assert.Contains(t, out.String(), "SYNTHETIC")

	data, err := os.ReadFile(cfg.Trace.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	beats := 0
	for _, l := range lines {
		if strings.Contains(l, ",beat,") {
			beats++
		}
	}
	assert.Equal(t, sum.Beats, beats)

	// 重复 Stop 没有副作用
	assert.Equal(t, sum, sys.Stop())
}

func TestPulseSystem_ReplayUntilEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.wav")

	// 20 秒 75 BPM，每 2ms 一个点
	cfg := DefaultSyntheticConfig()
	cfg.BPM = 75
	gen := NewSyntheticPPG(cfg)
	volts := make([]float64, 10000)
	for i := range volts {
		volts[i], _ = gen.ReadSample(DefaultChannel)
	}
	w, err := NewWavWriter(path, 500)
	require.NoError(t, err)
	require.NoError(t, w.WriteVoltages(volts))
	require.NoError(t, w.Close())

	sysCfg := DefaultConfig()
	sysCfg.Source = SourceReplay
	sysCfg.Replay.File = path
	sysCfg.System.Fast = true

	sys := NewPulseSystem(sysCfg, quietLogger(), io.Discard)
	require.NoError(t, sys.Start(context.Background()))
	waitDone(t, sys)
	sum := sys.Stop()

	assert.Equal(t, uint64(10000), sys.Monitor().Ticks())
	assert.Equal(t, 75, sys.Monitor().BPM())
	assert.Greater(t, sum.Beats, 15)
}

func TestPulseSystem_SyntheticDropout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source = SourceSynthetic
	cfg.Synthetic.BPM = 75
	cfg.Synthetic.DropoutAtMs = 10000
	cfg.Synthetic.DropoutForMs = 4000
	cfg.System.Fast = true
	cfg.System.Duration = 30 * time.Second

	sys := NewPulseSystem(cfg, quietLogger(), io.Discard)
	require.NoError(t, sys.Start(context.Background()))
	waitDone(t, sys)
	sum := sys.Stop()

	assert.Equal(t, 1, sum.Dropouts)
	assert.Equal(t, 75, sys.Monitor().BPM())
}

func TestPulseSystem_RealtimeStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source = SourceSynthetic
	cfg.Display.RefreshInterval = time.Millisecond

	var out syncBuffer
	sys := NewPulseSystem(cfg, quietLogger(), &out)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sys.Start(ctx))

	time.Sleep(100 * time.Millisecond)
	cancel()
	waitDone(t, sys)
	sys.Stop()

	assert.Greater(t, sys.Monitor().Ticks(), uint64(0))
	assert.Contains(t, out.String(), "] BPM")
}

func TestPulseSystem_StartErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Source = SourceReplay
	cfg.Replay.File = filepath.Join(t.TempDir(), "missing.wav")

	sys := NewPulseSystem(cfg, quietLogger(), io.Discard)
	assert.Error(t, sys.Start(context.Background()))

	cfg = DefaultConfig()
	cfg.Source = "bluetooth"
	sys = NewPulseSystem(cfg, quietLogger(), io.Discard)
	assert.ErrorIs(t, sys.Start(context.Background()), ErrUnknownSource)

	// 未启动也可以 Stop
	assert.Equal(t, SessionSummary{}, sys.Stop())
}
