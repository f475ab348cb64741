//go:build !linux

package pulsemeter

// LockMemory 仅 linux 支持，其他平台什么也不做
func LockMemory() error { return nil }

func UnlockMemory() error { return nil }
