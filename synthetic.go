package pulsemeter

import (
	"math/rand"

	"github.com/mjibson/go-dsp/window"

	"pulsemeter/BeatDetector"
)

// SyntheticConfig 合成 PPG 波形参数
type SyntheticConfig struct {
	BPM       float64 // 标称心率，IBIs 为空时使用
	IBIs      []int   // 显式的 IBI 序列 (ms)，循环使用
	Baseline  float64 // 舒张期电平 (V)
	Amplitude float64 // 收缩期峰高 (V)
	Noise     float64 // 高斯噪声标准差 (V)
	Jitter    float64 // IBI 随机抖动比例 (0.05 = ±5%)

	// 模拟传感器脱落：从 DropoutAtMs 开始输出平线，持续 DropoutForMs
	DropoutAtMs  int
	DropoutForMs int

	Seed int64
}

// DefaultSyntheticConfig 72 BPM，2.0V ~ 3.0V
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		BPM:       72,
		Baseline:  2.0,
		Amplitude: 1.0,
		Seed:      1,
	}
}

// SyntheticPPG 确定性的脉搏波发生器，实现 Sampler。
// 每个周期：快速上升 (Hann 前半)、缓慢回落 (Hann 后半)、一个小的重搏波。
type SyntheticPPG struct {
	cfg SyntheticConfig
	rng *rand.Rand

	now       int // ms
	beatStart int
	beatLen   int
	beatIdx   int
	shape     []float64

	shapes map[int][]float64
}

// NewSyntheticPPG 创建发生器
func NewSyntheticPPG(cfg SyntheticConfig) *SyntheticPPG {
	if cfg.BPM <= 0 && len(cfg.IBIs) == 0 {
		cfg.BPM = DefaultSyntheticConfig().BPM
	}
	s := &SyntheticPPG{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		shapes: make(map[int][]float64),
	}
	s.beatLen = s.nextIBI()
	s.shape = s.shapeFor(s.beatLen)
	return s
}

// ReadSample 返回当前时刻的电压并前进一个 tick。通道号被忽略
func (s *SyntheticPPG) ReadSample(channel uint8) (float64, error) {
	for s.now >= s.beatStart+s.beatLen {
		s.beatStart += s.beatLen
		s.beatIdx++
		s.beatLen = s.nextIBI()
		s.shape = s.shapeFor(s.beatLen)
	}

	v := s.cfg.Baseline
	if !s.inDropout() {
		i := (s.now - s.beatStart) / BeatDetector.TickPeriodMs
		if i < len(s.shape) {
			v += s.cfg.Amplitude * s.shape[i]
		}
	}
	if s.cfg.Noise > 0 {
		v += s.rng.NormFloat64() * s.cfg.Noise
	}

	s.now += BeatDetector.TickPeriodMs
	return v, nil
}

// NominalIBI 无抖动时的标称 IBI (ms)
func (s *SyntheticPPG) NominalIBI() int {
	if len(s.cfg.IBIs) > 0 {
		return s.cfg.IBIs[0]
	}
	return int(60000 / s.cfg.BPM)
}

// Elapsed 已生成时长 (ms)
func (s *SyntheticPPG) Elapsed() int { return s.now }

// Close 实现 SamplerCloser
func (s *SyntheticPPG) Close() error { return nil }

func (s *SyntheticPPG) inDropout() bool {
	if s.cfg.DropoutForMs <= 0 {
		return false
	}
	return s.now >= s.cfg.DropoutAtMs && s.now < s.cfg.DropoutAtMs+s.cfg.DropoutForMs
}

func (s *SyntheticPPG) nextIBI() int {
	var ibi float64
	if len(s.cfg.IBIs) > 0 {
		ibi = float64(s.cfg.IBIs[s.beatIdx%len(s.cfg.IBIs)])
	} else {
		ibi = 60000 / s.cfg.BPM
	}
	if s.cfg.Jitter > 0 {
		ibi *= 1 + (s.rng.Float64()*2-1)*s.cfg.Jitter
	}
	n := int(ibi)
	n -= n % BeatDetector.TickPeriodMs
	if n < 4*BeatDetector.TickPeriodMs {
		n = 4 * BeatDetector.TickPeriodMs
	}
	return n
}

// shapeFor 生成长度为 ibi 的单周期波形 (每 tick 一个点，峰值约为 1)
func (s *SyntheticPPG) shapeFor(ibi int) []float64 {
	if shape, ok := s.shapes[ibi]; ok {
		return shape
	}
	n := ibi / BeatDetector.TickPeriodMs
	shape := make([]float64, n)

	rise := max(n*12/100, 2)
	fall := max(n*35/100, 2)
	up := window.Hann(2 * rise)
	down := window.Hann(2 * fall)
	copy(shape, up[:rise])
	for i := 0; i < fall && rise+i < n; i++ {
		shape[rise+i] = down[fall+i]
	}

	// 重搏波，峰高 0.15，落在下降段后 1/3，叠加后仍低于 50% 幅度
	notchLen := max(n*10/100, 2)
	notch := window.Hann(notchLen)
	offset := rise + fall*2/3
	for i, w := range notch {
		if offset+i < n {
			shape[offset+i] += 0.15 * w
		}
	}

	s.shapes[ibi] = shape
	return shape
}
