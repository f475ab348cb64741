package BeatDetector

// RateSlots 心率平均窗口的长度
const RateSlots = 10

// RateAverager 保存最近 10 个 IBI (旧 -> 新)，输出平均后的 BPM。
// 定长数组，原地移位，不分配内存。
type RateAverager struct {
	slots [RateSlots]int
	bpm   int
}

// Seed 用同一个 IBI 填满整个窗口，避免启动时被默认值拉偏
func (ra *RateAverager) Seed(ibi int) {
	for i := range ra.slots {
		ra.slots[i] = ibi
	}
}

// Record 丢掉最旧的 IBI，追加新的，返回 60000 / 平均值。
// 平均值为 0 时保持上一次的 BPM (除零保护)
func (ra *RateAverager) Record(ibi int) int {
	total := 0
	for i := 0; i < RateSlots-1; i++ {
		ra.slots[i] = ra.slots[i+1]
		total += ra.slots[i]
	}
	ra.slots[RateSlots-1] = ibi
	total += ibi

	mean := total / RateSlots
	if mean <= 0 {
		return ra.bpm
	}
	ra.bpm = MsPerMinute / mean
	return ra.bpm
}

// BPM 最近一次计算的结果 (sample-and-hold)
func (ra *RateAverager) BPM() int { return ra.bpm }

// History 返回窗口副本，旧的在前
func (ra *RateAverager) History() [RateSlots]int { return ra.slots }
