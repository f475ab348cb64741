package pulsemeter

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"pulsemeter/BeatDetector"
)

// 心率的频率搜索范围 (Hz)，对应 30 ~ 240 BPM
const (
	MinPulseHz = 0.5
	MaxPulseHz = 4.0
)

// SpectrumAnalyzer 用整段波形的主频估计心率。
// 不参与实时检测，只给 benchmark 和离线分析做交叉验证
type SpectrumAnalyzer struct {
	SampleRate float64
	FFTSize    int
	Window     []float64
}

// NewSpectrumAnalyzer fftSize 个 tick 一帧
func NewSpectrumAnalyzer(fftSize int) *SpectrumAnalyzer {
	return &SpectrumAnalyzer{
		SampleRate: 1000.0 / BeatDetector.TickPeriodMs,
		FFTSize:    fftSize,
		Window:     window.Hann(fftSize),
	}
}

// FindDominantFrequency 返回 [minFreq, maxFreq] 内的主频 (Hz) 和幅度。
// 取 samples 的最后 FFTSize 个点，不够时返回 0
func (sa *SpectrumAnalyzer) FindDominantFrequency(samples []float64, minFreq, maxFreq float64) (float64, float64) {
	if len(samples) < sa.FFTSize {
		return 0, 0
	}
	samples = samples[len(samples)-sa.FFTSize:]

	// 1. 去直流，加窗
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(sa.FFTSize)
	input := make([]float64, sa.FFTSize)
	for i, v := range samples {
		input[i] = (v - mean) * sa.Window[i]
	}

	// 2. FFT
	spectrum := fft.FFTReal(input)
	mags := make([]float64, sa.FFTSize/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	// 3. 限定范围内找峰
	binWidth := sa.SampleRate / float64(sa.FFTSize)
	start := max(int(minFreq/binWidth), 1)
	end := min(int(maxFreq/binWidth)+1, len(mags)-1)

	maxMag, maxIndex := 0.0, 0
	for i := start; i < end; i++ {
		if mags[i] > maxMag {
			maxMag, maxIndex = mags[i], i
		}
	}
	if maxIndex == 0 {
		return 0, 0
	}

	// 4. 抛物线插值
	// p = 0.5 * (alpha - gamma) / (alpha - 2*beta + gamma)
	alpha, beta, gamma := mags[maxIndex-1], mags[maxIndex], mags[maxIndex+1]
	freq := float64(maxIndex) * binWidth
	if denom := alpha - 2*beta + gamma; denom != 0 {
		freq = (float64(maxIndex) + 0.5*(alpha-gamma)/denom) * binWidth
	}
	return freq, maxMag
}

// EstimateBPM 主频换算成 BPM，没有有效峰时返回 0
func (sa *SpectrumAnalyzer) EstimateBPM(samples []float64) float64 {
	freq, _ := sa.FindDominantFrequency(samples, MinPulseHz, MaxPulseHz)
	return freq * 60
}
