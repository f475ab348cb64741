package pulsemeter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSerialPort 模拟串口
type MockSerialPort struct {
	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer
	Closed      bool
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{
		ReadBuffer:  new(bytes.Buffer),
		WriteBuffer: new(bytes.Buffer),
	}
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	return m.ReadBuffer.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	return m.WriteBuffer.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.Closed = true
	return nil
}

// 辅助函数：生成采集板响应帧
func makeSampleFrame(count uint16) []byte {
	return []byte{ADC_PREAMBLE, ADC_PREAMBLE, ADC_CMD_READ, byte(count), byte(count >> 8), ADC_END}
}

func TestSerialADC_RequestFrame(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}
	mockPort.ReadBuffer.Write(makeSampleFrame(500))

	_, err := adc.ReadSample(4)
	require.NoError(t, err)

	expected := []byte{0xFE, 0xFE, 0x20, 0x04, 0xFD}
	assert.Equal(t, expected, mockPort.WriteBuffer.Bytes())
}

func TestSerialADC_ChannelMasked(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}
	mockPort.ReadBuffer.Write(makeSampleFrame(0))

	_, err := adc.ReadSample(0xFC)
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), mockPort.WriteBuffer.Bytes()[3])
}

func TestSerialADC_CountToVolts(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}

	// 512 * 5mV = 2.56V
	mockPort.ReadBuffer.Write(makeSampleFrame(512))
	v, err := adc.ReadSample(DefaultChannel)
	require.NoError(t, err)
	assert.InDelta(t, 2.56, v, 1e-9)
}

func TestSerialADC_LowByteLooksLikeEnd(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}

	// 0x1FD: 低字节 == 结束符
	mockPort.ReadBuffer.Write(makeSampleFrame(0x1FD))
	count, err := adc.ReadCount(DefaultChannel)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1FD), count)
}

func TestSerialADC_EchoFilter(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}

	// 回显 + 真实响应
	echoFrame := []byte{0xFE, 0xFE, 0x20, 0x04, 0xFD}
	mockPort.ReadBuffer.Write(echoFrame)
	mockPort.ReadBuffer.Write(makeSampleFrame(600))

	count, err := adc.ReadCount(DefaultChannel)
	require.NoError(t, err)
	assert.Equal(t, uint16(600), count)
}

func TestSerialADC_NoResponse(t *testing.T) {
	adc := &SerialADC{conn: NewMockSerialPort()}

	_, err := adc.ReadSample(DefaultChannel)
	assert.True(t, errors.Is(err, ErrFrameNotFound))
}

func TestSerialADC_Garbage(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}
	mockPort.ReadBuffer.Write([]byte{0x01, 0x02, 0x03})

	_, err := adc.ReadSample(DefaultChannel)
	assert.ErrorIs(t, err, ErrFrameNotFound)
}

func TestSerialADC_NotOpen(t *testing.T) {
	adc := NewSerialADC("/dev/null", 115200)

	_, err := adc.ReadSample(DefaultChannel)
	assert.ErrorIs(t, err, ErrPortNotOpen)
	assert.NoError(t, adc.Close())
}

func TestSerialADC_Close(t *testing.T) {
	mockPort := NewMockSerialPort()
	adc := &SerialADC{conn: mockPort}

	require.NoError(t, adc.Close())
	assert.True(t, mockPort.Closed)
}

func TestSampleConversions(t *testing.T) {
	assert.Equal(t, uint8(7), MaskChannel(0xFF))
	assert.InDelta(t, FullScaleVolts, CountToVolts(4000), 1e-9)
	assert.InDelta(t, 0.0, PCMToVolts(-1), 1e-9)
	assert.InDelta(t, FullScaleVolts, PCMToVolts(2), 1e-9)
	assert.InDelta(t, FullScaleVolts/2, PCMToVolts(0), 1e-9)
	assert.InDelta(t, 0.25, VoltsToPCM(PCMToVolts(0.25)), 1e-9)
}
