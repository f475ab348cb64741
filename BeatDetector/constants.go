package BeatDetector

// Tick 是毫秒级的采样时间计数，每次中断 +TickPeriodMs。
// 32 位无符号，回绕后减法仍然正确。
type Tick uint32

// 以下常数是针对传感器调出来的经验值，不做运行时配置
const (
	TickPeriodMs = 2 // 采样周期 (ms)

	MinBeatIntervalMs = 250  // 最小生理间隔，低于此值视为高频噪声
	DropoutTimeoutMs  = 2500 // 超过此时长无心跳 -> 判定掉线，重新播种

	// 不应期 = 上一次 IBI 的 3/5，用来躲开重搏切迹 (dicrotic notch)
	RefractoryNum = 3
	RefractoryDen = 5

	InitialIBI  = 600 // ms
	MsPerMinute = 60000
)

// 启动时的种子值 (中间电平)
const (
	SeedPeak      = 2.50
	SeedTrough    = 2.50
	SeedThreshold = 2.55
)

// 掉线恢复时的默认值
const (
	ResetThreshold = 2.6
	ResetLevel     = 2.55
)
