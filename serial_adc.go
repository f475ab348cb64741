package pulsemeter

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// 采集板的帧格式 (沿用 FE FE ... FD 的帧界定):
//
//	请求: FE FE 20 [ch] FD
//	响应: FE FE 20 [lo] [hi] FD   10 位码值，低字节在前
const (
	ADC_PREAMBLE = 0xFE
	ADC_END      = 0xFD
	ADC_CMD_READ = 0x20
)

var (
	ErrPortNotOpen   = errors.New("serial port not open")
	ErrFrameNotFound = errors.New("response frame not found")
)

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialADC 通过串口读取外部 ADC 采集板
type SerialADC struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	conn        SerialPort
	buf         [64]byte
}

// NewSerialADC 创建新的串口采样源
func NewSerialADC(port string, baudRate int) *SerialADC {
	return &SerialADC{
		Port:        port,
		BaudRate:    baudRate,
		ReadTimeout: time.Millisecond,
	}
}

// Open 打开串口连接
func (a *SerialADC) Open() error {
	config := &serial.Config{
		Name:        a.Port,
		Baud:        a.BaudRate,
		ReadTimeout: a.ReadTimeout,
	}
	s, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.Port, err)
	}
	a.conn = s
	return nil
}

// Close 关闭串口连接
func (a *SerialADC) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// ReadSample 发送一次转换请求并等待结果
func (a *SerialADC) ReadSample(channel uint8) (float64, error) {
	count, err := a.ReadCount(channel)
	if err != nil {
		return 0, err
	}
	return CountToVolts(count), nil
}

// ReadCount 返回原始 10 位码值
func (a *SerialADC) ReadCount(channel uint8) (uint16, error) {
	if a.conn == nil {
		return 0, ErrPortNotOpen
	}
	req := [...]byte{ADC_PREAMBLE, ADC_PREAMBLE, ADC_CMD_READ, MaskChannel(channel), ADC_END}
	if _, err := a.conn.Write(req[:]); err != nil {
		return 0, fmt.Errorf("write request: %w", err)
	}

	data, err := a.readResponse(ADC_CMD_READ)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("short sample payload: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint16(data[:2]) & 0x03FF, nil
}

// readResponse 读取一帧并返回 2 字节数据部分。
// 串口可能回显请求帧 (FE FE 20 ch FD)，回显只有 1 字节载荷，跳过。
// 低字节可能恰好是 0xFD，所以按固定长度判断而不是找第一个结束符
func (a *SerialADC) readResponse(cmd byte) ([]byte, error) {
	n, err := a.conn.Read(a.buf[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("timeout or no data: %w", ErrFrameNotFound)
	}

	data := a.buf[:n]
	header := []byte{ADC_PREAMBLE, ADC_PREAMBLE, cmd}
	for {
		idx := bytes.Index(data, header)
		if idx == -1 {
			return nil, fmt.Errorf("%w in: %s", ErrFrameNotFound, hex.EncodeToString(a.buf[:n]))
		}
		frame := data[idx+len(header):]
		switch {
		case len(frame) >= 3 && frame[2] == ADC_END:
			return frame[:2], nil
		case len(frame) >= 2 && frame[1] == ADC_END:
			data = frame[2:]
		default:
			return nil, fmt.Errorf("frame end not found: %w", ErrFrameNotFound)
		}
	}
}
