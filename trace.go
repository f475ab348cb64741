package pulsemeter

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// BeatTracer 记录心跳事件 (不记录波形)
// 系统只依赖这个接口，不依赖具体的文件操作
type BeatTracer interface {
	Record(e Event)
	Close() error
}

// CsvBeatTracer 是 BeatTracer 的 CSV 实现。每次会话一个 uuid，
// 多次会话追加到同一个文件时可以区分
type CsvBeatTracer struct {
	session string
	closer  io.Closer
	writer  *bufio.Writer
}

// NewCsvBeatTracer 创建或追加 CSV 文件，新文件写表头
func NewCsvBeatTracer(filename string) (*CsvBeatTracer, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	t, err := newCsvBeatTracer(f, f, info.Size() == 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func newCsvBeatTracer(w io.Writer, c io.Closer, header bool) (*CsvBeatTracer, error) {
	t := &CsvBeatTracer{
		session: uuid.NewString(),
		closer:  c,
		writer:  bufio.NewWriter(w),
	}
	if header {
		if _, err := t.writer.WriteString("Session,TimeMs,Kind,IBI,BPM,Threshold,Peak,Trough,Phase\n"); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Session 本次会话的 id
func (t *CsvBeatTracer) Session() string { return t.session }

// Record 记录一个事件。采样错误不进文件，日志里已经有
func (t *CsvBeatTracer) Record(e Event) {
	if e.Kind == EventSampleError {
		return
	}
	s := e.State
	fmt.Fprintf(t.writer, "%s,%d,%s,%d,%d,%.3f,%.3f,%.3f,%s\n",
		t.session, uint32(e.Time), e.Kind, e.IBI, e.BPM, s.Threshold, s.Peak, s.Trough, s.Phase)
}

// Close 刷新缓冲区并关闭文件
func (t *CsvBeatTracer) Close() error {
	err := t.writer.Flush()
	if t.closer != nil {
		if cerr := t.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NoOpTracer 空实现，不记录时使用，避免到处判断 nil
type NoOpTracer struct{}

func (NoOpTracer) Record(Event)  {}
func (NoOpTracer) Close() error { return nil }
