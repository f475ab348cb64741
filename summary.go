package pulsemeter

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// SummaryWindow 会话统计保留的最近 IBI 数
const SummaryWindow = 512

// SessionSummary 一次会话的心率统计
type SessionSummary struct {
	Beats    int     // 确认心跳总数
	Dropouts int     // 掉线次数
	MeanIBI  float64 // ms
	SDNN     float64 // IBI 标准差 (ms)
	RMSSD    float64 // 相邻 IBI 差的均方根 (ms)
	MeanBPM  float64
	MinBPM   float64
	MaxBPM   float64
}

func (s SessionSummary) String() string {
	return fmt.Sprintf("beats=%d dropouts=%d meanIBI=%.1fms SDNN=%.1fms RMSSD=%.1fms BPM mean=%.1f min=%.0f max=%.0f",
		s.Beats, s.Dropouts, s.MeanIBI, s.SDNN, s.RMSSD, s.MeanBPM, s.MinBPM, s.MaxBPM)
}

// SessionStats 由事件消费者填充，保留最近 SummaryWindow 个 IBI
type SessionStats struct {
	mu       sync.Mutex
	ibis     [SummaryWindow]float64
	head     int
	count    int
	beats    int
	dropouts int
}

// Observe 处理一个监视器事件
func (s *SessionStats) Observe(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case EventBeat:
		s.beats++
		s.ibis[s.head] = float64(e.IBI)
		s.head = (s.head + 1) % SummaryWindow
		if s.count < SummaryWindow {
			s.count++
		}
	case EventDropout:
		s.dropouts++
	}
}

// window 按时间顺序返回保留的 IBI
func (s *SessionStats) window() []float64 {
	out := make([]float64, 0, s.count)
	start := (s.head - s.count + SummaryWindow) % SummaryWindow
	for i := 0; i < s.count; i++ {
		out = append(out, s.ibis[(start+i)%SummaryWindow])
	}
	return out
}

// Summary 计算统计。没有心跳时除计数外都为 0
func (s *SessionStats) Summary() SessionSummary {
	s.mu.Lock()
	ibis := s.window()
	sum := SessionSummary{Beats: s.beats, Dropouts: s.dropouts}
	s.mu.Unlock()

	if len(ibis) == 0 {
		return sum
	}

	sum.MeanIBI, sum.SDNN = stat.MeanStdDev(ibis, nil)
	if len(ibis) < 2 {
		sum.SDNN = 0
	}

	if len(ibis) > 1 {
		diffs := make([]float64, len(ibis)-1)
		for i := range diffs {
			d := ibis[i+1] - ibis[i]
			diffs[i] = d * d
		}
		sum.RMSSD = math.Sqrt(stat.Mean(diffs, nil))
	}

	bpms := make([]float64, len(ibis))
	for i, ibi := range ibis {
		bpms[i] = 60000 / ibi
	}
	sum.MeanBPM = stat.Mean(bpms, nil)
	sum.MinBPM, sum.MaxBPM = math.Inf(1), math.Inf(-1)
	for _, b := range bpms {
		sum.MinBPM = math.Min(sum.MinBPM, b)
		sum.MaxBPM = math.Max(sum.MaxBPM, b)
	}
	return sum
}
