package pulsemeter

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWav(t *testing.T, rate int, volts []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	w, err := NewWavWriter(path, rate)
	require.NoError(t, err)
	require.NoError(t, w.WriteVoltages(volts))
	require.NoError(t, w.Close())
	return path
}

func TestWav_RoundTrip(t *testing.T) {
	volts := []float64{0, 1.0, 2.5, 4.0, FullScaleVolts}
	path := writeWav(t, 500, volts)

	r, err := NewWavReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 500, r.SampleRate)
	assert.Equal(t, 1, r.Channels)
	assert.Equal(t, len(volts)*2, r.DataSize)

	out := make([]float64, 16)
	n, err := r.ReadFrames(out)
	require.NoError(t, err)
	require.Equal(t, len(volts), n)
	for i, v := range volts {
		assert.InDelta(t, v, PCMToVolts(out[i]), 0.001, "sample %d", i)
	}

	_, err = r.ReadFrames(out)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplaySampler_OneSamplePerTick(t *testing.T) {
	volts := make([]float64, 3000)
	for i := range volts {
		volts[i] = float64(i%500) / 100
	}
	rs, err := NewReplaySampler(writeWav(t, 500, volts))
	require.NoError(t, err)
	defer rs.Close()

	for i := range volts {
		v, err := rs.ReadSample(DefaultChannel)
		require.NoError(t, err)
		require.InDelta(t, volts[i], v, 0.001, "tick %d", i)
	}
	assert.Equal(t, 6000, rs.Elapsed())

	_, err = rs.ReadSample(DefaultChannel)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplaySampler_Downsamples(t *testing.T) {
	// 1kHz 文件，每个 tick 跳过一帧
	volts := make([]float64, 2000)
	for i := range volts {
		volts[i] = float64(i%2) * 3
	}
	rs, err := NewReplaySampler(writeWav(t, 1000, volts))
	require.NoError(t, err)
	defer rs.Close()

	for i := 0; i < 1000; i++ {
		v, err := rs.ReadSample(DefaultChannel)
		require.NoError(t, err)
		require.InDelta(t, 0, v, 0.001)
	}
	_, err = rs.ReadSample(DefaultChannel)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWavReader_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF0000AVI LIST"), 0o644))
	_, err := NewWavReader(path)
	assert.Error(t, err)

	_, err = NewReplaySampler(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
