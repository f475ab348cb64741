package pulsemeter

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"pulsemeter/BeatDetector"
)

// EventKind 监视器向外发布的事件类型
type EventKind int

const (
	EventBeat          EventKind = iota // 确认心跳，BPM 已更新
	EventBeatDiscarded                  // 上升沿出现但 IBI 未采纳 (启动第一拍)
	EventRetune                         // 下降沿，阈值重新计算
	EventDropout                        // 超时重新播种
	EventSampleError                    // 采样失败，本 tick 沿用上一个样本
)

func (k EventKind) String() string {
	switch k {
	case EventBeat:
		return "beat"
	case EventBeatDiscarded:
		return "discarded"
	case EventRetune:
		return "retune"
	case EventDropout:
		return "dropout"
	case EventSampleError:
		return "sample-error"
	}
	return "unknown"
}

// Event 一个事件。State 为事件发生时检测器的快照
type Event struct {
	Kind  EventKind
	Time  BeatDetector.Tick
	IBI   int
	BPM   int
	State BeatDetector.State
	Err   error
}

// TickResult 单个 tick 的结果
type TickResult struct {
	BeatDetector.Result
	Now     BeatDetector.Tick
	Voltage float64
	Err     error // 非致命的采样错误
}

// Monitor 把采样源、检测器和指示灯串起来，由周期性 tick 驱动。
// Tick 在互斥锁内执行，不阻塞也不分配；BPM 和指示灯可以在其他 goroutine 无锁读取
type Monitor struct {
	mu         sync.Mutex
	sampler    Sampler
	channel    uint8
	detector   *BeatDetector.Detector
	now        BeatDetector.Tick
	lastSample float64

	bpm        atomic.Int32
	indicator  atomic.Bool
	readErrors atomic.Uint64
	ticks      atomic.Uint64

	events  chan Event
	dropped atomic.Uint64
}

// NewMonitor eventBuffer 为 0 时不发布事件
func NewMonitor(sampler Sampler, channel uint8, eventBuffer int) *Monitor {
	m := &Monitor{
		sampler:  sampler,
		channel:  MaskChannel(channel),
		detector: BeatDetector.NewDetector(),
	}
	if eventBuffer > 0 {
		m.events = make(chan Event, eventBuffer)
	}
	m.detector.SetIndicator(func(on bool) { m.indicator.Store(on) })
	return m
}

// Events 事件通道，未启用时为 nil
func (m *Monitor) Events() <-chan Event { return m.events }

// Tick 采样 -> 检测 -> 平均 -> 掉线检查。
// 只有采样源结束 (io.EOF) 时返回 error，其他采样错误沿用上一个样本继续
func (m *Monitor) Tick() (TickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now
	res := TickResult{Now: now}

	v, err := m.sampler.ReadSample(m.channel)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, err
		}
		m.readErrors.Add(1)
		res.Err = err
		m.emit(Event{Kind: EventSampleError, Time: now, Err: err})
		v = m.lastSample
	}
	m.lastSample = v
	res.Voltage = v

	r := m.detector.Tick(v, now)
	res.Result = r
	m.bpm.Store(int32(m.detector.BPM()))

	if r.Confirmed {
		m.emit(Event{Kind: EventBeat, Time: now, IBI: r.Beat.IBI, BPM: r.Beat.BPM, State: m.detector.State()})
	} else if r.Rising && r.Discarded {
		m.emit(Event{Kind: EventBeatDiscarded, Time: now, State: m.detector.State()})
	}
	if r.Falling {
		m.emit(Event{Kind: EventRetune, Time: now, BPM: int(m.bpm.Load()), State: m.detector.State()})
	}
	if r.Dropout {
		m.emit(Event{Kind: EventDropout, Time: now, BPM: int(m.bpm.Load()), State: m.detector.State()})
	}

	m.now += BeatDetector.TickPeriodMs
	m.ticks.Add(1)
	return res, nil
}

// emit 非阻塞发送，满了就丢
func (m *Monitor) emit(e Event) {
	if m.events == nil {
		return
	}
	select {
	case m.events <- e:
	default:
		m.dropped.Add(1)
	}
}

// Reset 检测器回到上电状态，tick 计数不变
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detector.Reset()
	m.bpm.Store(0)
	m.indicator.Store(false)
}

// BPM 最近一次的平均心率，可并发读取
func (m *Monitor) BPM() int { return int(m.bpm.Load()) }

// Indicator 脉冲指示灯状态
func (m *Monitor) Indicator() bool { return m.indicator.Load() }

// Ticks 已执行的 tick 数
func (m *Monitor) Ticks() uint64 { return m.ticks.Load() }

// ReadErrors 累计采样错误数
func (m *Monitor) ReadErrors() uint64 { return m.readErrors.Load() }

// DroppedEvents 因通道满丢弃的事件数
func (m *Monitor) DroppedEvents() uint64 { return m.dropped.Load() }

// State 检测器快照
func (m *Monitor) State() BeatDetector.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector.State()
}

// History 平均窗口
func (m *Monitor) History() [BeatDetector.RateSlots]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector.History()
}
