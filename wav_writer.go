package pulsemeter

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// WavWriter 单声道 16-bit WAV 写入器。
// benchmark 用它把合成的测试波形导出，再用 -file 回放
type WavWriter struct {
	file       *os.File
	w          *bufio.Writer
	sampleRate int
	dataSize   int
}

// NewWavWriter 创建新的 WAV 写入器
func NewWavWriter(filename string, sampleRate int) (*WavWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	// 先写 44 字节占位，Close 时回写大小
	var header [44]byte
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		return nil, err
	}

	return &WavWriter{
		file:       f,
		w:          bufio.NewWriter(f),
		sampleRate: sampleRate,
	}, nil
}

// WriteVoltages 电压按 ADC 满量程映射到 PCM
func (w *WavWriter) WriteVoltages(volts []float64) error {
	var b [2]byte
	for _, v := range volts {
		binary.LittleEndian.PutUint16(b[:], uint16(int16(VoltsToPCM(v)*32767)))
		if _, err := w.w.Write(b[:]); err != nil {
			return err
		}
		w.dataSize += 2
	}
	return nil
}

// Close 刷新缓冲并回写 WAV 头
func (w *WavWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.file.Close()
		return err
	}

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+w.dataSize))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)                     // PCM
	binary.LittleEndian.PutUint16(header[20:], 1)                      // AudioFormat
	binary.LittleEndian.PutUint16(header[22:], 1)                      // Mono
	binary.LittleEndian.PutUint32(header[24:], uint32(w.sampleRate))   // SampleRate
	binary.LittleEndian.PutUint32(header[28:], uint32(w.sampleRate*2)) // ByteRate
	binary.LittleEndian.PutUint16(header[32:], 2)                      // BlockAlign
	binary.LittleEndian.PutUint16(header[34:], 16)                     // BitsPerSample
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(w.dataSize))

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return err
	}
	if _, err := w.file.Write(header); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
