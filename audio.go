package pulsemeter

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// AudioSampler 把声卡 line-in 当作模拟输入。
// 音频回调在自己的线程里写入每个通道的最新值，ReadSample 只做一次原子读，
// 不会阻塞 tick。
type AudioSampler struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	SampleRate int
	Channels   int

	latest [8]atomic.Uint64 // math.Float64bits
	frames atomic.Uint64
}

// NewAudioSampler 打开采集设备 (按名字模糊匹配，空字符串用默认设备)
func NewAudioSampler(sampleRate, channels int, targetDeviceName string) (*AudioSampler, error) {
	if channels < 1 || channels > 8 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	as := &AudioSampler{
		ctx:        ctx,
		SampleRate: sampleRate,
		Channels:   channels,
	}
	// 未收到数据前输出中间电平
	mid := math.Float64bits(PCMToVolts(0))
	for i := range as.latest {
		as.latest[i].Store(mid)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if targetDeviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(targetDeviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					break
				}
			}
		}
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if len(pInputSamples) == 0 || framecount == 0 {
			return
		}
		samples := unsafe.Slice((*float32)(unsafe.Pointer(&pInputSamples[0])), int(framecount)*channels)
		as.push(samples)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init device: %w", err)
	}
	as.device = device

	return as, nil
}

// push 只保留每个通道最后一帧 (交错排列)
func (as *AudioSampler) push(samples []float32) {
	frames := len(samples) / as.Channels
	if frames == 0 {
		return
	}
	last := samples[(frames-1)*as.Channels:]
	for ch := 0; ch < as.Channels; ch++ {
		as.latest[ch].Store(math.Float64bits(PCMToVolts(float64(last[ch]))))
	}
	as.frames.Add(uint64(frames))
}

// Start 启动音频捕获
func (as *AudioSampler) Start() error {
	if as.device == nil {
		return fmt.Errorf("device not initialized")
	}
	return as.device.Start()
}

// ReadSample 返回该通道最新的电压。通道超出采集通道数时回绕
func (as *AudioSampler) ReadSample(channel uint8) (float64, error) {
	ch := int(MaskChannel(channel)) % as.Channels
	return math.Float64frombits(as.latest[ch].Load()), nil
}

// Frames 已收到的帧数
func (as *AudioSampler) Frames() uint64 { return as.frames.Load() }

// Close 停止音频捕获并释放资源
func (as *AudioSampler) Close() error {
	if as.device != nil {
		as.device.Uninit()
		as.device = nil
	}
	if as.ctx != nil {
		_ = as.ctx.Uninit()
		as.ctx.Free()
		as.ctx = nil
	}
	return nil
}
