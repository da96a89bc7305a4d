// Package storage makes session data durable. A Sink receives every channel's
// raw series and averaged windows; layouts are the sink's business.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/sample"
	"github.com/itohio/cryotherm/pkg/session"
	"go.uber.org/zap"
)

// Sink persists series and windows of one session.
type Sink interface {
	WriteSeries(series sample.Series) error
	WriteWindows(channel string, windows []sample.Window) error
	Close() error
}

// SessionInfo describes the session that produced the data.
type SessionInfo struct {
	ID         string
	Start      time.Time
	End        time.Time
	State      string
	Channels   int
	Scans      int
	Skipped    int
	ActualRate float64
	Bias       float64
	WindowSize int

	// TemperatureScale converts kelvin to the stored temperature unit.
	TemperatureScale float64
}

// NewSessionInfo summarises res for sinks.
func NewSessionInfo(res *session.Result, cfg *config.Config, windowSize int) SessionInfo {
	return SessionInfo{
		ID:         res.ID.String(),
		Start:      res.Stats.Start,
		End:        res.Stats.End,
		State:      res.State.String(),
		Channels:   len(res.Channels),
		Scans:      res.Stats.Scans,
		Skipped:    res.Stats.Skipped,
		ActualRate: res.Stats.ActualRate,
		Bias:       cfg.Acquisition.Bias,
		WindowSize: windowSize,

		TemperatureScale: cfg.Calibration.TemperatureScale,
	}
}

// Multi writes to every sink in order. Failures are joined; one failing sink
// does not stop the others.
type Multi []Sink

func (m Multi) WriteSeries(series sample.Series) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteSeries(series))
	}
	return errors.Join(errs...)
}

func (m Multi) WriteWindows(channel string, windows []sample.Window) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteWindows(channel, windows))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Persist writes every raw series, then every channel's windows. windows is
// indexed like res.Series and may be nil to skip averaged output.
func Persist(sink Sink, res *session.Result, windows [][]sample.Window) error {
	var errs []error
	for _, series := range res.Series {
		if err := sink.WriteSeries(series); err != nil {
			errs = append(errs, fmt.Errorf("write series %s: %w", series.Channel.Name, err))
		}
	}
	for i, w := range windows {
		if i >= len(res.Series) {
			break
		}
		name := res.Series[i].Channel.Name
		if err := sink.WriteWindows(name, w); err != nil {
			errs = append(errs, fmt.Errorf("write windows %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Open builds the sinks enabled in cfg.Output. Sinks opened before a failure
// are closed.
func Open(cfg *config.Config, info SessionInfo, log *zap.Logger) (Multi, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := cfg.Output

	var sinks Multi
	if out.CSV {
		sinks = append(sinks, NewCSV(out.Dir, info.Start).WithTemperatureScale(cfg.Calibration.TemperatureScale))
		log.Debug("csv output enabled", zap.String("dir", out.Dir))
	}
	if out.SQLite != "" {
		db, err := OpenSQLite(out.SQLite, info)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, db)
		log.Debug("sqlite output enabled", zap.String("path", out.SQLite))
	}
	if out.MQTT.Server != "" {
		pub, err := DialMQTT(out.MQTT)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, NewMQTT(pub, out.MQTT.Topic, info))
		log.Debug("mqtt output enabled", zap.String("server", out.MQTT.Server), zap.String("topic", out.MQTT.Topic))
	}
	return sinks, nil
}
