package BeatDetector

// DropoutSupervisor 监视距上一次确认心跳的时间。
// 传感器脱落或信号变平时，超时后让检测器整体重新播种。
type DropoutSupervisor struct {
	Timeout Tick
}

// NewDropoutSupervisor 使用默认的 2500ms 超时
func NewDropoutSupervisor() DropoutSupervisor {
	return DropoutSupervisor{Timeout: DropoutTimeoutMs}
}

// Check 超时返回 true。无符号减法，计数回绕时依然成立
func (s DropoutSupervisor) Check(now, lastBeatTime Tick) bool {
	return now-lastBeatTime > s.Timeout
}
