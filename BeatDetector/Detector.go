package BeatDetector

/*
心跳检测状态机

每 2ms 喂一个电压样本：
  1. 不应期之后追踪波谷
  2. 阈值之上追踪波峰
  3. 上升穿越阈值 -> 确认一次心跳 (间隔 > 250ms 且 > 3/5 IBI)
  4. 下降穿越阈值 -> 脉冲结束，阈值重新定在峰谷中点

前两次心跳特殊处理：第一次没有参考点，IBI 丢弃；第二次用自己的 IBI 填满平均窗口。
2.5s 没有心跳则全部重来。
*/

// Phase 启动阶段，和脉冲上升/下降子状态正交
type Phase int

const (
	AwaitingFirstBeat Phase = iota
	AwaitingSecondBeat
	Steady
)

func (p Phase) String() string {
	switch p {
	case AwaitingFirstBeat:
		return "awaiting-first"
	case AwaitingSecondBeat:
		return "awaiting-second"
	case Steady:
		return "steady"
	}
	return "unknown"
}

// ConfirmedBeat 一次被采纳的心跳
type ConfirmedBeat struct {
	Time Tick // 上升沿时刻
	IBI  int  // ms
	BPM  int  // 更新后的平均心率
}

// Result 单个 tick 的全部输出
type Result struct {
	Beat      ConfirmedBeat
	Confirmed bool // Beat 有效

	Rising    bool // 本 tick 出现上升沿 (包括被丢弃的第一拍)
	Falling   bool // 本 tick 出现下降沿，阈值已重新计算
	Discarded bool // 上升沿出现但 IBI 没有进入平均
	Dropout   bool // 超时，已重新播种
}

// State 检测器内部状态的快照
type State struct {
	Envelope
	IBI          int
	PulseActive  bool
	LastBeatTime Tick
	Phase        Phase
	BPM          int
}

// Detector 单实例的心跳检测器。不是并发安全的，
// 调用方保证同一时刻只有一个 tick 在执行。
type Detector struct {
	env        Envelope
	rate       RateAverager
	supervisor DropoutSupervisor

	pulseActive  bool
	lastBeatTime Tick
	ibi          int
	firstBeat    bool
	secondBeat   bool

	// 上升沿 true，下降沿 false。必须立即返回
	indicator func(on bool)
}

// NewDetector 创建并播种
func NewDetector() *Detector {
	d := &Detector{supervisor: NewDropoutSupervisor()}
	d.Reset()
	return d
}

// SetIndicator 设置脉冲指示灯回调 (板上的 LED)
func (d *Detector) SetIndicator(fn func(on bool)) {
	d.indicator = fn
}

// Reset 回到上电状态，平均窗口一并清空
func (d *Detector) Reset() {
	d.env = NewEnvelope()
	d.ibi = InitialIBI
	d.pulseActive = false
	d.lastBeatTime = 0
	d.firstBeat = true
	d.secondBeat = false
	d.rate = RateAverager{}
}

// Tick 处理一个样本并执行掉线检查，每 2ms 调用一次
func (d *Detector) Tick(voltage float64, now Tick) Result {
	r := d.detect(voltage, now)
	if d.Supervise(now) {
		r.Dropout = true
	}
	return r
}

// ProcessSample 只执行检测部分 (步骤 1-4)，不做掉线检查
func (d *Detector) ProcessSample(voltage float64, now Tick) (ConfirmedBeat, bool) {
	r := d.detect(voltage, now)
	return r.Beat, r.Confirmed
}

// Supervise 掉线检查，超时则重新播种并返回 true
func (d *Detector) Supervise(now Tick) bool {
	if !d.supervisor.Check(now, d.lastBeatTime) {
		return false
	}
	d.env.Reseed()
	d.lastBeatTime = now
	d.firstBeat = true
	d.secondBeat = false
	return true
}

func (d *Detector) detect(voltage float64, now Tick) Result {
	var r Result

	n := now - d.lastBeatTime
	pastRefractory := n > d.refractory()

	// 1. 波谷：不应期内不更新，重搏切迹不会把 T 拉低
	if d.env.Below(voltage) && pastRefractory {
		d.env.TrackTrough(voltage)
	}

	// 2. 波峰
	if d.env.Above(voltage) {
		d.env.TrackPeak(voltage)
	}

	// 3. 上升沿
	if n > MinBeatIntervalMs && d.env.Above(voltage) && !d.pulseActive && pastRefractory {
		r.Rising = true
		d.setPulse(true)

		ibi := int(n)
		d.ibi = ibi
		d.lastBeatTime = now

		if d.secondBeat {
			d.secondBeat = false
			d.rate.Seed(ibi)
		}

		switch {
		case d.firstBeat:
			// 第一拍没有前一拍做参考，间隔没有意义
			d.firstBeat = false
			d.secondBeat = true
			r.Discarded = true
		case ibi < MinBeatIntervalMs:
			r.Discarded = true
		default:
			bpm := d.rate.Record(ibi)
			r.Beat = ConfirmedBeat{Time: now, IBI: ibi, BPM: bpm}
			r.Confirmed = true
		}
	}

	// 4. 下降沿：脉冲结束，阈值重新定在 50% 幅度
	if d.env.Below(voltage) && d.pulseActive {
		r.Falling = true
		d.setPulse(false)
		d.env.Retune()
	}

	return r
}

// refractory = IBI 的 3/5，整数运算，先除后乘
func (d *Detector) refractory() Tick {
	return Tick(d.ibi / RefractoryDen * RefractoryNum)
}

func (d *Detector) setPulse(on bool) {
	d.pulseActive = on
	if d.indicator != nil {
		d.indicator(on)
	}
}

// Phase 当前启动阶段
func (d *Detector) Phase() Phase {
	switch {
	case d.firstBeat:
		return AwaitingFirstBeat
	case d.secondBeat:
		return AwaitingSecondBeat
	}
	return Steady
}

// BPM 最近一次确认心跳后的平均心率，启动后为 0
func (d *Detector) BPM() int { return d.rate.BPM() }

// History 平均窗口副本
func (d *Detector) History() [RateSlots]int { return d.rate.History() }

// State 返回快照
func (d *Detector) State() State {
	return State{
		Envelope:     d.env,
		IBI:          d.ibi,
		PulseActive:  d.pulseActive,
		LastBeatTime: d.lastBeatTime,
		Phase:        d.Phase(),
		BPM:          d.rate.BPM(),
	}
}
