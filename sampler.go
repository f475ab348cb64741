package pulsemeter

// Sampler 模拟量采样接口：给定通道，同步返回电压。
// 要求有界延迟，远小于 2ms 的 tick 周期。
type Sampler interface {
	ReadSample(channel uint8) (float64, error)
}

// SamplerCloser 需要释放资源的采样源 (串口、声卡、文件)
type SamplerCloser interface {
	Sampler
	Close() error
}

// 10 位 ADC，每个码值 5mV
const (
	ADCStepVolts   = 0.005
	ADCMaxCount    = 1023
	FullScaleVolts = ADCMaxCount * ADCStepVolts
)

// DefaultChannel 传感器接在 ADC4
const DefaultChannel uint8 = 4

// MaskChannel 通道号只有 3 位 (0-7)
func MaskChannel(channel uint8) uint8 {
	return channel & 0x07
}

// CountToVolts ADC 码值 -> 电压
func CountToVolts(count uint16) float64 {
	if count > ADCMaxCount {
		count = ADCMaxCount
	}
	return float64(count) * ADCStepVolts
}

// PCMToVolts 把 [-1, 1] 的音频样本映射到 ADC 满量程
func PCMToVolts(s float64) float64 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return (s + 1) / 2 * FullScaleVolts
}

// VoltsToPCM PCMToVolts 的逆映射
func VoltsToPCM(v float64) float64 {
	s := v/FullScaleVolts*2 - 1
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
