package pulsemeter

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"pulsemeter/BeatDetector"
)

// WavReader 简单的 WAV 文件读取器 (仅支持 16-bit PCM)
type WavReader struct {
	file       *os.File
	r          *bufio.Reader
	SampleRate int
	Channels   int
	DataSize   int
	remaining  int // data chunk 剩余字节
	raw        []byte
}

func NewWavReader(filename string) (*WavReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	w, err := parseWavHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	w.file = f
	w.r = bufio.NewReaderSize(f, 16*1024)
	return w, nil
}

// parseWavHeader 定位到 data chunk 开头
func parseWavHeader(f io.ReadSeeker) (*WavReader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid wav file")
	}

	var channels, sampleRate, bitsPerSample int
	foundFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("invalid wav file: missing fmt or data chunk")
			}
			return nil, err
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		padding := size % 2

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too small")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, err
			}
			if _, err := f.Seek(padding, io.SeekCurrent); err != nil {
				return nil, err
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("only 16-bit wav supported, got %d", bitsPerSample)
			}
			if channels < 1 || sampleRate < 1 {
				return nil, fmt.Errorf("invalid format: %d channels, %d Hz", channels, sampleRate)
			}
			return &WavReader{
				SampleRate: sampleRate,
				Channels:   channels,
				DataSize:   int(size),
				remaining:  int(size),
			}, nil
		default:
			if _, err := f.Seek(size+padding, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}

// ReadFrames 读取交错的采样到 out (-1.0 ~ 1.0)，返回帧数。
// out 的长度应为 Channels 的整数倍
func (w *WavReader) ReadFrames(out []float64) (int, error) {
	frameBytes := 2 * w.Channels
	want := (len(out) / w.Channels) * frameBytes
	if want > w.remaining {
		want = w.remaining - w.remaining%frameBytes
	}
	if want == 0 {
		return 0, io.EOF
	}
	if cap(w.raw) < want {
		w.raw = make([]byte, want)
	}
	buf := w.raw[:want]
	n, err := io.ReadFull(w.r, buf)
	n -= n % frameBytes
	w.remaining -= n
	for i := 0; i < n/2; i++ {
		val := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		out[i] = float64(val) / 32768.0
	}
	frames := n / frameBytes
	if frames == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}
	return frames, nil
}

func (w *WavReader) Close() error {
	return w.file.Close()
}

// ReplaySampler 把录好的 WAV 当作传感器回放：每次 ReadSample 前进 2ms。
// 文件采样率不是 500Hz 时按最近点重采样
type ReplaySampler struct {
	reader *WavReader
	step   float64 // 每个 tick 前进的帧数
	cursor float64 // 当前帧位置

	chunk      []float64
	chunkStart int // chunk 第一帧的全局下标
	chunkLen   int // chunk 中的帧数
}

// NewReplaySampler 打开回放文件
func NewReplaySampler(filename string) (*ReplaySampler, error) {
	r, err := NewWavReader(filename)
	if err != nil {
		return nil, err
	}
	return newReplaySampler(r), nil
}

func newReplaySampler(r *WavReader) *ReplaySampler {
	return &ReplaySampler{
		reader: r,
		step:   float64(r.SampleRate) * BeatDetector.TickPeriodMs / 1000.0,
		chunk:  make([]float64, 1024*r.Channels),
	}
}

// ReadSample 文件读完返回 io.EOF
func (rs *ReplaySampler) ReadSample(channel uint8) (float64, error) {
	idx := int(rs.cursor)
	for idx >= rs.chunkStart+rs.chunkLen {
		rs.chunkStart += rs.chunkLen
		n, err := rs.reader.ReadFrames(rs.chunk)
		rs.chunkLen = n
		if err != nil {
			return 0, err
		}
	}
	rs.cursor += rs.step

	ch := int(MaskChannel(channel)) % rs.reader.Channels
	s := rs.chunk[(idx-rs.chunkStart)*rs.reader.Channels+ch]
	return PCMToVolts(s), nil
}

// SampleRate 文件采样率
func (rs *ReplaySampler) SampleRate() int { return rs.reader.SampleRate }

// Elapsed 已回放时长 (ms)
func (rs *ReplaySampler) Elapsed() int {
	return int(rs.cursor / rs.step * BeatDetector.TickPeriodMs)
}

func (rs *ReplaySampler) Close() error {
	return rs.reader.Close()
}
