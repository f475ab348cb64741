package pulsemeter

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 采样源
const (
	SourceSerial    = "serial"
	SourceAudio     = "audio"
	SourceReplay    = "replay"
	SourceSynthetic = "synthetic"
)

var ErrUnknownSource = errors.New("unknown sample source")

// Config 集中管理系统的可调参数。
// 采样周期 (2ms) 和检测算法的常数不在这里，它们是设计常量
type Config struct {
	Source  string `yaml:"source"`  // serial / audio / replay / synthetic
	Channel uint8  `yaml:"channel"` // ADC 通道 (0-7)

	// --- 串口 ADC 采集板 ---
	Serial struct {
		Port        string        `yaml:"port"`         // 空字符串时自动探测
		BaudRate    int           `yaml:"baud_rate"`    // 115200
		ReadTimeout time.Duration `yaml:"read_timeout"` // 单次转换等待上限，远小于 tick
	} `yaml:"serial"`

	// --- 声卡 line-in ---
	Audio struct {
		Device     string `yaml:"device"`      // 设备名模糊匹配，空为默认设备
		SampleRate int    `yaml:"sample_rate"` // 采集采样率
		Channels   int    `yaml:"channels"`
	} `yaml:"audio"`

	// --- WAV 回放 ---
	Replay struct {
		File string `yaml:"file"`
	} `yaml:"replay"`

	// --- 合成波形 ---
	Synthetic struct {
		BPM          float64 `yaml:"bpm"`
		Noise        float64 `yaml:"noise"`
		Jitter       float64 `yaml:"jitter"`
		DropoutAtMs  int     `yaml:"dropout_at_ms"`
		DropoutForMs int     `yaml:"dropout_for_ms"`
		Seed         int64   `yaml:"seed"`
	} `yaml:"synthetic"`

	// --- 显示 ---
	Display struct {
		Enabled         bool          `yaml:"enabled"`
		RefreshInterval time.Duration `yaml:"refresh_interval"` // 每位的扫描间隔
	} `yaml:"display"`

	// --- 心跳事件记录 ---
	Trace struct {
		File string `yaml:"file"` // 空为不记录
	} `yaml:"trace"`

	// --- 系统 ---
	System struct {
		EventBuffer int           `yaml:"event_buffer"` // 事件通道容量
		LockMemory  bool          `yaml:"lock_memory"`  // mlockall，避免缺页打断 tick
		Fast        bool          `yaml:"fast"`         // 虚拟时间，不按 2ms 节拍睡眠 (仅 replay / synthetic)
		Duration    time.Duration `yaml:"duration"`     // 信号时长上限 (按 tick 计)，0 为不限
	} `yaml:"system"`

	Log struct {
		Level  string `yaml:"level"`  // debug / info / warn / error
		Format string `yaml:"format"` // text / json
	} `yaml:"log"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Source = SourceSerial
	cfg.Channel = DefaultChannel

	cfg.Serial.BaudRate = 115200
	cfg.Serial.ReadTimeout = time.Millisecond

	cfg.Audio.SampleRate = 8000
	cfg.Audio.Channels = 1

	synth := DefaultSyntheticConfig()
	cfg.Synthetic.BPM = synth.BPM
	cfg.Synthetic.Seed = synth.Seed

	cfg.Display.Enabled = true
	cfg.Display.RefreshInterval = 5 * time.Millisecond

	cfg.System.EventBuffer = 64

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 在默认配置上叠加 YAML 文件中出现的字段
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate 检查配置一致性
func (c *Config) Validate() error {
	switch c.Source {
	case SourceSerial:
		if c.Serial.BaudRate <= 0 {
			return fmt.Errorf("invalid baud rate %d", c.Serial.BaudRate)
		}
	case SourceAudio:
		if c.Audio.SampleRate <= 0 {
			return fmt.Errorf("invalid audio sample rate %d", c.Audio.SampleRate)
		}
		if c.Audio.Channels < 1 || c.Audio.Channels > 8 {
			return fmt.Errorf("invalid audio channel count %d", c.Audio.Channels)
		}
	case SourceReplay:
		if c.Replay.File == "" {
			return errors.New("replay source requires a file")
		}
	case SourceSynthetic:
		if c.Synthetic.BPM <= 0 || c.Synthetic.BPM > 300 {
			return fmt.Errorf("synthetic bpm %.1f out of range", c.Synthetic.BPM)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, c.Source)
	}

	if c.Channel > 7 {
		return fmt.Errorf("channel %d out of range 0-7", c.Channel)
	}
	if c.Display.Enabled && c.Display.RefreshInterval <= 0 {
		return fmt.Errorf("invalid display refresh interval %v", c.Display.RefreshInterval)
	}
	if c.System.Fast && c.Source != SourceReplay && c.Source != SourceSynthetic {
		return fmt.Errorf("fast mode requires a replay or synthetic source, got %q", c.Source)
	}
	if c.System.Duration < 0 {
		return fmt.Errorf("negative duration %v", c.System.Duration)
	}
	if c.System.EventBuffer < 0 {
		return fmt.Errorf("negative event buffer %d", c.System.EventBuffer)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// SyntheticConfig 转换为发生器参数
func (c *Config) SyntheticConfig() SyntheticConfig {
	s := DefaultSyntheticConfig()
	s.BPM = c.Synthetic.BPM
	s.Noise = c.Synthetic.Noise
	s.Jitter = c.Synthetic.Jitter
	s.DropoutAtMs = c.Synthetic.DropoutAtMs
	s.DropoutForMs = c.Synthetic.DropoutForMs
	s.Seed = c.Synthetic.Seed
	return s
}
