package BeatDetector

// Envelope 追踪脉搏波的峰 (P) 和谷 (T)，并由此得到 50% 幅度的判决阈值。
// 和包络衰减式的追踪不同，这里在每个下降沿一次性重新收敛：
// P、T 被拉回到新的阈值，下一个周期重新张开。
type Envelope struct {
	Peak      float64 // P
	Trough    float64 // T
	Threshold float64 // thresh
	Amplitude float64 // amp，上一个周期的峰谷差
}

// NewEnvelope 返回启动种子状态
func NewEnvelope() Envelope {
	return Envelope{
		Peak:      SeedPeak,
		Trough:    SeedTrough,
		Threshold: SeedThreshold,
	}
}

// Below 样本是否在阈值以下
func (e *Envelope) Below(v float64) bool { return v < e.Threshold }

// Above 样本是否在阈值以上
func (e *Envelope) Above(v float64) bool { return v > e.Threshold }

// TrackTrough 只往下走。调用方负责不应期判断
func (e *Envelope) TrackTrough(v float64) {
	if v < e.Trough {
		e.Trough = v
	}
}

// TrackPeak 只往上走
func (e *Envelope) TrackPeak(v float64) {
	if v > e.Peak {
		e.Peak = v
	}
}

// Retune 在脉冲下降沿调用：阈值设在峰谷中点，P/T 收拢到阈值
func (e *Envelope) Retune() {
	e.Amplitude = e.Peak - e.Trough
	e.Threshold = e.Amplitude/2 + e.Trough
	e.Peak = e.Threshold
	e.Trough = e.Threshold
}

// Reseed 掉线后回到默认值。Amplitude 保留上一次的值，不参与判决
func (e *Envelope) Reseed() {
	e.Threshold = ResetThreshold
	e.Peak = ResetLevel
	e.Trough = ResetLevel
}
