package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/cryotherm/pkg/channel"
	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/sample"
	"github.com/itohio/cryotherm/pkg/session"
)

var start = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func testResult(t *testing.T) *session.Result {
	t.Helper()
	channels, err := channel.Resolve("48,56")
	require.NoError(t, err)

	res := &session.Result{
		ID:       uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Channels: channels,
		State:    session.Closed,
		Stats: session.Stats{
			Channels:   2,
			Cycles:     2,
			Scans:      4,
			ActualRate: 2,
			Start:      start,
			End:        start.Add(2 * time.Second),
		},
	}
	for i, ch := range channels {
		series := sample.Series{Channel: ch}
		for j := 0; j < 4; j++ {
			series.Records = append(series.Records, sample.Record{
				Timestamp:   start.Add(time.Duration(j/2) * time.Second),
				Cycle:       j / 2,
				Voltage:     float64(i+1) * 0.5,
				Resistance:  float64(j) * 100,
				Temperature: 100000 + float64(j),
			})
		}
		res.Series = append(res.Series, series)
	}
	return res
}

func testInfo(res *session.Result) SessionInfo {
	cfg := config.Default()
	cfg.Acquisition.Bias = 0.5
	return NewSessionInfo(res, cfg, 2)
}

// recordingSink remembers what it was given.
type recordingSink struct {
	series  []string
	windows map[string]int
	err     error
	closed  bool
}

func (r *recordingSink) WriteSeries(s sample.Series) error {
	r.series = append(r.series, s.Channel.Name)
	return r.err
}

func (r *recordingSink) WriteWindows(ch string, w []sample.Window) error {
	if r.windows == nil {
		r.windows = map[string]int{}
	}
	r.windows[ch] = len(w)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestNewSessionInfo(t *testing.T) {
	info := testInfo(testResult(t))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", info.ID)
	assert.Equal(t, "closed", info.State)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 4, info.Scans)
	assert.Equal(t, 0.5, info.Bias)
	assert.Equal(t, 2, info.WindowSize)
	assert.Equal(t, start, info.Start)
}

func TestPersist(t *testing.T) {
	res := testResult(t)
	windows, err := res.Averages(2)
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, Persist(sink, res, windows))
	assert.Equal(t, []string{"AIN48", "AIN56"}, sink.series)
	assert.Equal(t, map[string]int{"AIN48": 2, "AIN56": 2}, sink.windows)
}

func TestPersist_NoWindows(t *testing.T) {
	sink := &recordingSink{}
	require.NoError(t, Persist(sink, testResult(t), nil))
	assert.Len(t, sink.series, 2)
	assert.Empty(t, sink.windows)
}

func TestPersist_JoinsErrors(t *testing.T) {
	boom := errors.New("disk full")
	sink := &recordingSink{err: boom}

	err := Persist(sink, testResult(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "AIN48")
	assert.Contains(t, err.Error(), "AIN56")
	// Keeps going after the first failure.
	assert.Len(t, sink.series, 2)
}

func TestMulti(t *testing.T) {
	boom := errors.New("broker down")
	a, b := &recordingSink{}, &recordingSink{err: boom}
	m := Multi{a, b}

	res := testResult(t)
	err := m.WriteSeries(res.Series[0])
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"AIN48"}, a.series)
	assert.Equal(t, []string{"AIN48"}, b.series)

	assert.ErrorIs(t, m.WriteWindows("AIN48", nil), boom)
	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	assert.NoError(t, Multi{a}.Close())
	assert.NoError(t, Multi(nil).WriteSeries(res.Series[0]))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Dir = dir
	cfg.Output.CSV = true
	cfg.Output.SQLite = filepath.Join(dir, "db", "runs.db")

	res := testResult(t)
	sinks, err := Open(cfg, testInfo(res), nil)
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.IsType(t, &CSV{}, sinks[0])
	assert.IsType(t, &SQLite{}, sinks[1])

	windows, err := res.Averages(2)
	require.NoError(t, err)
	require.NoError(t, Persist(sinks, res, windows))
	require.NoError(t, sinks.Close())

	assert.FileExists(t, filepath.Join(dir, "2024-03-01_data", "thermometer_AIN48.csv"))
	assert.FileExists(t, cfg.Output.SQLite)
}

func TestOpen_Nothing(t *testing.T) {
	cfg := config.Default()
	cfg.Output.CSV = false

	sinks, err := Open(cfg, SessionInfo{}, nil)
	require.NoError(t, err)
	assert.Empty(t, sinks)
}
