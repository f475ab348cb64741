package pulsemeter

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// 共阴极 7 段码，bit6..bit0 = a b c d e f g
var segmentTable = [10]byte{0x7E, 0x30, 0x6D, 0x79, 0x33, 0x5B, 0x5F, 0x71, 0x7F, 0x7B}

// SegmentBlank 全灭
const SegmentBlank byte = 0x00

// 位选，低电平有效。slot 0 = 百位
var slotSelectors = [3]byte{0x0E, 0x0D, 0x0B}

// DisplaySlots 数码管位数
const DisplaySlots = len(slotSelectors)

// SegmentPattern 数字 -> 段码，超出 0-9 的返回全灭
func SegmentPattern(digit int) byte {
	if digit < 0 || digit > 9 {
		return SegmentBlank
	}
	return segmentTable[digit]
}

// SlotSelector 位 -> 位选码
func SlotSelector(slot int) byte {
	return slotSelectors[slot%DisplaySlots]
}

// Digits 拆成百、十、个位。BPM 限制在 0-999；
// 小于 100 时百位为 -1 (灭)，最高位从十位开始
func Digits(bpm int) [DisplaySlots]int {
	if bpm < 0 {
		bpm = 0
	} else if bpm > 999 {
		bpm = 999
	}
	d := [DisplaySlots]int{bpm / 100, bpm / 10 % 10, bpm % 10}
	if bpm < 100 {
		d[0] = -1
	}
	return d
}

// SegmentDriver 数码管驱动：写一次段码 + 位选
type SegmentDriver interface {
	Drive(segments, selector byte)
}

// Presenter 动态扫描：每次 Refresh 只点亮一位
type Presenter struct {
	driver SegmentDriver
	bpm    func() int
	slot   int
}

// NewPresenter bpm 为只读数据源，一般是 Monitor.BPM
func NewPresenter(driver SegmentDriver, bpm func() int) *Presenter {
	return &Presenter{driver: driver, bpm: bpm}
}

// Present 点亮指定位
func (p *Presenter) Present(bpm uint16, slot int) {
	slot %= DisplaySlots
	d := Digits(int(bpm))
	p.driver.Drive(SegmentPattern(d[slot]), SlotSelector(slot))
}

// Refresh 显示当前 BPM 的下一位，0 -> 1 -> 2 -> 0
func (p *Presenter) Refresh() {
	bpm := p.bpm()
	if bpm < 0 {
		bpm = 0
	}
	p.Present(uint16(min(bpm, 999)), p.slot)
	p.slot = (p.slot + 1) % DisplaySlots
}

// Slot 下一次 Refresh 要点亮的位
func (p *Presenter) Slot() int { return p.slot }

// TerminalDisplay 在终端模拟 3 位数码管。
// 收集一整轮扫描后再输出，内容不变时不重绘
type TerminalDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	frame     [DisplaySlots]byte
	last      string
	indicator func() bool
}

// NewTerminalDisplay indicator 可以为 nil
func NewTerminalDisplay(out io.Writer, indicator func() bool) *TerminalDisplay {
	return &TerminalDisplay{out: out, indicator: indicator}
}

// Drive 实现 SegmentDriver
func (t *TerminalDisplay) Drive(segments, selector byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := -1
	for i, sel := range slotSelectors {
		if sel == selector {
			slot = i
			break
		}
	}
	if slot < 0 {
		return
	}
	t.frame[slot] = segments
	if slot == DisplaySlots-1 {
		t.flush()
	}
}

func (t *TerminalDisplay) flush() {
	var sb strings.Builder
	sb.WriteString("\r[")
	for _, seg := range t.frame {
		sb.WriteByte(segmentChar(seg))
	}
	sb.WriteString("] BPM ")
	if t.indicator != nil && t.indicator() {
		sb.WriteString("♥")
	} else {
		sb.WriteString(" ")
	}

	line := sb.String()
	if line == t.last {
		return
	}
	t.last = line
	fmt.Fprint(t.out, line)
}

// segmentChar 段码反查成字符
func segmentChar(seg byte) byte {
	for d, pattern := range segmentTable {
		if pattern == seg {
			return byte('0' + d)
		}
	}
	return ' '
}
