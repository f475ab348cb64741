package pulsemeter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"pulsemeter/BeatDetector"
)

// 采样错误每隔多少次打一条日志
const sampleErrorLogEvery = 500

// 虚拟时间下每隔多少个 tick 让出一次 CPU
const fastYieldEvery = 512

// PulseSystem 管理采样、检测、显示和记录的生命周期
type PulseSystem struct {
	cfg *Config
	log *slog.Logger
	out io.Writer // 控制台 (数码管、提示信息)

	sampler   SamplerCloser
	monitor   *Monitor
	presenter *Presenter
	tracer    BeatTracer
	stats     SessionStats

	sampleErrors int
	maxTicks     uint64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	summary  SessionSummary
}

// NewPulseSystem 创建系统实例。logger 为 nil 时用 slog.Default()
func NewPulseSystem(cfg *Config, logger *slog.Logger, out io.Writer) *PulseSystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &PulseSystem{
		cfg:  cfg,
		log:  logger,
		out:  out,
		done: make(chan struct{}),
	}
}

// Start 启动系统。ctx 取消或输入结束后 Done 关闭
func (s *PulseSystem) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if s.cfg.System.LockMemory {
		if err := LockMemory(); err != nil {
			s.log.Warn("could not lock memory", "err", err)
		}
	}

	// 1. 采样源
	sampler, err := s.openSampler()
	if err != nil {
		return err
	}
	s.sampler = sampler

	// 2. 事件记录
	s.tracer = NoOpTracer{}
	if s.cfg.Trace.File != "" {
		tr, err := NewCsvBeatTracer(s.cfg.Trace.File)
		if err != nil {
			s.sampler.Close()
			return fmt.Errorf("failed to open trace file: %w", err)
		}
		s.log.Info("tracing beats", "file", s.cfg.Trace.File, "session", tr.Session())
		s.tracer = tr
	}

	// 3. 检测
	s.monitor = NewMonitor(s.sampler, s.cfg.Channel, s.cfg.System.EventBuffer)
	if s.cfg.System.Duration > 0 {
		s.maxTicks = uint64(s.cfg.System.Duration / (BeatDetector.TickPeriodMs * time.Millisecond))
	}

	ctx, s.cancel = context.WithCancel(ctx)

	fast := s.cfg.System.Fast
	if s.cfg.Display.Enabled && !fast {
		td := NewTerminalDisplay(s.out, s.monitor.Indicator)
		s.presenter = NewPresenter(td, s.monitor.BPM)
		s.wg.Add(1)
		go s.runDisplayLoop(ctx)
	}

	// 实时模式下事件由独立 goroutine 消费；虚拟时间下在 tick 循环里同步消费
	tickDone := make(chan struct{})
	if !fast {
		s.wg.Add(1)
		go s.runEventLoop(ctx, tickDone)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		defer close(tickDone)
		if fast {
			s.runVirtualLoop(ctx)
		} else {
			s.runTickLoop(ctx)
		}
	}()

	s.log.Info("pulse monitor started", "source", s.cfg.Source, "channel", s.cfg.Channel, "fast", fast)
	return nil
}

// Done 输入结束、到达时长上限或 Stop 后关闭
func (s *PulseSystem) Done() <-chan struct{} { return s.done }

// Monitor 运行中的监视器，Start 之前为 nil
func (s *PulseSystem) Monitor() *Monitor { return s.monitor }

// Stop 停止所有循环，关闭资源，返回会话统计。可以重复调用
func (s *PulseSystem) Stop() SessionSummary {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		if s.tracer != nil {
			if err := s.tracer.Close(); err != nil {
				s.log.Error("failed to close trace", "err", err)
			}
		}
		if s.sampler != nil {
			if err := s.sampler.Close(); err != nil {
				s.log.Error("failed to close sampler", "err", err)
			}
		}

		s.summary = s.stats.Summary()
		if s.monitor != nil {
			s.log.Info("session summary",
				"beats", s.summary.Beats,
				"dropouts", s.summary.Dropouts,
				"mean_bpm", fmt.Sprintf("%.1f", s.summary.MeanBPM),
				"sdnn_ms", fmt.Sprintf("%.1f", s.summary.SDNN),
				"rmssd_ms", fmt.Sprintf("%.1f", s.summary.RMSSD),
				"ticks", s.monitor.Ticks(),
				"read_errors", s.monitor.ReadErrors(),
				"dropped_events", s.monitor.DroppedEvents(),
			)
		}
		if s.cfg.System.LockMemory {
			_ = UnlockMemory()
		}
	})
	return s.summary
}

// openSampler 按配置创建采样源
func (s *PulseSystem) openSampler() (SamplerCloser, error) {
	switch s.cfg.Source {
	case SourceSerial:
		port := s.cfg.Serial.Port
		if port == "" {
			p, err := AutoDetectPort()
			if err != nil {
				return nil, fmt.Errorf("no port configured and auto-detect failed: %w", err)
			}
			port = p
			s.log.Info("auto-detected serial port", "port", port)
		}
		adc := NewSerialADC(port, s.cfg.Serial.BaudRate)
		adc.ReadTimeout = s.cfg.Serial.ReadTimeout
		if err := adc.Open(); err != nil {
			return nil, err
		}
		fmt.Fprintf(s.out, "Mode: SERIAL ADC (%s @ %d)\n", port, s.cfg.Serial.BaudRate)
		return adc, nil

	case SourceAudio:
		as, err := NewAudioSampler(s.cfg.Audio.SampleRate, s.cfg.Audio.Channels, s.cfg.Audio.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to init audio capture: %w", err)
		}
		if err := as.Start(); err != nil {
			as.Close()
			return nil, fmt.Errorf("failed to start audio capture: %w", err)
		}
		fmt.Fprintf(s.out, "Mode: LINE-IN (%dHz)\n", s.cfg.Audio.SampleRate)
		return as, nil

	case SourceReplay:
		rs, err := NewReplaySampler(s.cfg.Replay.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open replay file: %w", err)
		}
		fmt.Fprintf(s.out, "Mode: REPLAY (%s, %dHz)\n", s.cfg.Replay.File, rs.SampleRate())
		return rs, nil

	case SourceSynthetic:
		fmt.Fprintf(s.out, "Mode: SYNTHETIC (%.0f BPM)\n", s.cfg.Synthetic.BPM)
		return NewSyntheticPPG(s.cfg.SyntheticConfig()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, s.cfg.Source)
}

// runTickLoop 实时模式：独占一个系统线程，每 2ms 一次
func (s *PulseSystem) runTickLoop(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(BeatDetector.TickPeriodMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// runVirtualLoop 虚拟时间：不睡眠，按输入的速度跑完
func (s *PulseSystem) runVirtualLoop(ctx context.Context) {
	for n := 0; ; n++ {
		if n%fastYieldEvery == 0 {
			if ctx.Err() != nil {
				return
			}
			runtime.Gosched()
		}
		if !s.tick() {
			return
		}
		s.drainEvents()
	}
}

// tick 执行一次，返回是否继续
func (s *PulseSystem) tick() bool {
	_, err := s.monitor.Tick()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.log.Info("end of input", "ticks", s.monitor.Ticks())
		} else {
			s.log.Error("tick failed", "err", err)
		}
		return false
	}
	if s.maxTicks > 0 && s.monitor.Ticks() >= s.maxTicks {
		s.log.Info("duration reached", "duration", s.cfg.System.Duration)
		return false
	}
	return true
}

// runEventLoop 消费监视器事件，tick 循环结束后把剩余事件处理完再退出
func (s *PulseSystem) runEventLoop(ctx context.Context, tickDone <-chan struct{}) {
	defer s.wg.Done()
	events := s.monitor.Events()
	if events == nil {
		return
	}
	for {
		select {
		case e := <-events:
			s.handleEvent(e)
		case <-tickDone:
			s.drainEvents()
			return
		}
	}
}

func (s *PulseSystem) drainEvents() {
	events := s.monitor.Events()
	if events == nil {
		return
	}
	for {
		select {
		case e := <-events:
			s.handleEvent(e)
		default:
			return
		}
	}
}

func (s *PulseSystem) handleEvent(e Event) {
	s.tracer.Record(e)
	s.stats.Observe(e)

	switch e.Kind {
	case EventBeat:
		s.log.Debug("beat", "t", uint32(e.Time), "ibi", e.IBI, "bpm", e.BPM)
	case EventBeatDiscarded:
		s.log.Debug("first beat, interval discarded", "t", uint32(e.Time))
	case EventRetune:
		s.log.Debug("threshold retuned", "t", uint32(e.Time), "thresh", e.State.Threshold)
	case EventDropout:
		s.log.Info("no beat for 2.5s, detector reseeded", "t", uint32(e.Time))
	case EventSampleError:
		s.sampleErrors++
		if s.sampleErrors == 1 || s.sampleErrors%sampleErrorLogEvery == 0 {
			s.log.Warn("sample read failed, reusing previous sample", "err", e.Err, "count", s.sampleErrors)
		}
	}
}

// runDisplayLoop 数码管扫描，只读 BPM
func (s *PulseSystem) runDisplayLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Display.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.presenter.Refresh()
		}
	}
}
