//go:build linux

package pulsemeter

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockMemory 锁定当前和以后的内存页，tick 线程不会因缺页被换出
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// UnlockMemory 撤销 LockMemory
func UnlockMemory() error {
	return unix.Munlockall()
}
