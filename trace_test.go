package pulsemeter

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsemeter/BeatDetector"
)

func TestCsvBeatTracer_Record(t *testing.T) {
	var buf bytes.Buffer
	tr, err := newCsvBeatTracer(&buf, nil, true)
	require.NoError(t, err)

	_, err = uuid.Parse(tr.Session())
	require.NoError(t, err)

	state := BeatDetector.State{Phase: BeatDetector.Steady}
	state.Threshold, state.Peak, state.Trough = 2.5, 2.5, 2.5
	tr.Record(Event{Kind: EventBeat, Time: 1600, IBI: 800, BPM: 75, State: state})
	tr.Record(Event{Kind: EventSampleError, Time: 1602, Err: errors.New("x")})
	require.NoError(t, tr.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Session,TimeMs,Kind,IBI,BPM,Threshold,Peak,Trough,Phase", lines[0])
	assert.Equal(t, tr.Session()+",1600,beat,800,75,2.500,2.500,2.500,steady", lines[1])
}

func TestCsvBeatTracer_AppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beats.csv")

	for i := 0; i < 2; i++ {
		tr, err := NewCsvBeatTracer(path)
		require.NoError(t, err)
		tr.Record(Event{Kind: EventDropout, Time: 2502})
		require.NoError(t, tr.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Session,"))

	s1 := strings.SplitN(lines[1], ",", 2)[0]
	s2 := strings.SplitN(lines[2], ",", 2)[0]
	assert.NotEqual(t, s1, s2)
}

func TestNoOpTracer(t *testing.T) {
	var tr BeatTracer = NoOpTracer{}
	tr.Record(Event{Kind: EventBeat})
	assert.NoError(t, tr.Close())
}
