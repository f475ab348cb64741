package pulsemeter

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SourceSerial, cfg.Source)
	assert.Equal(t, DefaultChannel, cfg.Channel)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 72.0, cfg.Synthetic.BPM)
}

func TestLoadConfig_Overlay(t *testing.T) {
	path := writeFile(t, "pulse.yaml", `
source: synthetic
channel: 2
synthetic:
  bpm: 90
  noise: 0.02
display:
  refresh_interval: 4ms
log:
  level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceSynthetic, cfg.Source)
	assert.Equal(t, uint8(2), cfg.Channel)
	assert.Equal(t, 90.0, cfg.Synthetic.BPM)
	assert.Equal(t, 4*time.Millisecond, cfg.Display.RefreshInterval)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 文件里没有的字段保持默认
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, int64(1), cfg.Synthetic.Seed)
	assert.Equal(t, "text", cfg.Log.Format)

	sc := cfg.SyntheticConfig()
	assert.Equal(t, 90.0, sc.BPM)
	assert.Equal(t, 0.02, sc.Noise)
	assert.Equal(t, 2.0, sc.Baseline)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.yaml", "source: [oops"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = LoadConfig(writeFile(t, "src.yaml", "source: bluetooth"))
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"replay without file", func(c *Config) { c.Source = SourceReplay }},
		{"bad baud", func(c *Config) { c.Serial.BaudRate = 0 }},
		{"audio channels", func(c *Config) { c.Source = SourceAudio; c.Audio.Channels = 9 }},
		{"synthetic bpm", func(c *Config) { c.Source = SourceSynthetic; c.Synthetic.BPM = 0 }},
		{"channel", func(c *Config) { c.Channel = 8 }},
		{"refresh", func(c *Config) { c.Display.RefreshInterval = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"fast serial", func(c *Config) { c.System.Fast = true }},
		{"duration", func(c *Config) { c.System.Duration = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Source = SourceReplay
	cfg.Replay.File = "capture.wav"
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "bpm", 72)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"bpm":72`)

	_, err = NewLogger(&buf, "nope", "text")
	assert.Error(t, err)

	lvl, err := ParseLogLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}
