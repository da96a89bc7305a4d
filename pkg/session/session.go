// Package session runs one acquisition: configure the device, stream read
// cycles into per-channel series, then stop and release the device.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itohio/cryotherm/pkg/calibration"
	"github.com/itohio/cryotherm/pkg/channel"
	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/daq"
	"github.com/itohio/cryotherm/pkg/fault"
	"github.com/itohio/cryotherm/pkg/sample"
)

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	Configured
	Streaming
	Draining
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configured:
		return "configured"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// CycleFunc is called after every read cycle with the demultiplexed frame
// and the statistics so far. It runs on the session goroutine and must not
// block.
type CycleFunc func(frame sample.Frame, stats Stats)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the source of cycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session owns the device from Configure until Run returns. It is used by one
// goroutine; the only cross-goroutine input is cancellation of the context
// passed to Run, which is observed between read cycles.
type Session struct {
	id    uuid.UUID
	cfg   config.Config
	dev   daq.Device
	table *calibration.Table
	log   *zap.Logger
	now   func() time.Time

	state     State
	opened    bool
	channels  []channel.Channel
	addresses []int
	transform *sample.Transform
	series    []sample.Series
	stats     Stats
	callbacks []CycleFunc
}

// New creates a session in the Idle state. cfg is copied so later changes by
// the caller have no effect.
func New(cfg *config.Config, dev daq.Device, table *calibration.Table, opts ...Option) *Session {
	s := &Session{
		id:    uuid.New(),
		cfg:   *cfg,
		dev:   dev,
		table: table,
		log:   zap.NewNop(),
		now:   time.Now,
		state: Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("component", "session"), zap.String("session", s.id.String()))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Channels returns the resolved scan list. It is empty before Configure.
func (s *Session) Channels() []channel.Channel {
	out := make([]channel.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// OnCycle registers a callback invoked after every read cycle.
func (s *Session) OnCycle(cb CycleFunc) {
	s.callbacks = append(s.callbacks, cb)
}

// Configure validates the configuration, resolves the channel set, opens the
// device and writes the analog setup registers. Any failure closes the
// session; it never reaches Streaming.
func (s *Session) Configure() error {
	if s.state != Idle {
		return fault.Param(fault.ErrInvalidConfiguration, "session.state", s.state, "configure requires an idle session")
	}

	if err := s.configure(); err != nil {
		s.log.Error("configuration failed", zap.Error(err))
		if s.opened {
			if cerr := s.dev.Close(); cerr != nil {
				s.log.Warn("failed to close device", zap.Error(cerr))
			}
			s.opened = false
		}
		s.state = Closed
		return err
	}

	s.state = Configured
	s.log.Info("session configured",
		zap.Int("channels", len(s.channels)),
		zap.Strings("names", channel.Names(s.channels)),
		zap.Float64("bias_current", s.transform.Params().Current()),
	)
	return nil
}

func (s *Session) configure() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	channels, err := channel.Resolve(s.cfg.Acquisition.Channels)
	if err != nil {
		return err
	}

	a := s.cfg.Acquisition
	transform, err := sample.NewTransform(sample.Params{
		Bias:       a.Bias,
		Gain:       a.Gain,
		RReference: a.RReference,
		Divider:    a.DividerConstant,
	}, s.table, s.cfg.Calibration.TemperatureScale)
	if err != nil {
		return err
	}

	if err := s.dev.Open(); err != nil {
		return err
	}
	s.opened = true

	names, values := s.cfg.SetupNames(), s.cfg.SetupValues()
	if err := s.dev.Configure(names, values); err != nil {
		return err
	}
	for i, name := range names {
		s.log.Debug("set register", zap.String("name", name), zap.Float64("value", values[i]))
	}

	addresses, err := s.dev.ResolveAddresses(channel.Names(channels))
	if err != nil {
		return err
	}

	s.channels = channels
	s.addresses = addresses
	s.transform = transform
	s.series = make([]sample.Series, len(channels))
	for i, ch := range channels {
		s.series[i] = sample.Series{Channel: ch}
	}
	return nil
}

// Run streams until the scan count is reached, ctx is cancelled or the
// device fails. An Idle session is configured first. The returned Result is
// non-nil once the session got past Configure and holds every record
// collected, including those before a failure.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.state == Idle {
		if err := s.Configure(); err != nil {
			return nil, err
		}
	}
	if s.state != Configured {
		return nil, fault.Param(fault.ErrInvalidConfiguration, "session.state", s.state, "run requires a configured session")
	}

	runErr := s.stream(ctx)

	s.state = Draining
	if err := s.drain(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	if runErr != nil {
		s.state = Failed
		s.log.Error("session failed", zap.Error(runErr), zap.Int("cycles", s.stats.Cycles))
	} else {
		s.state = Closed
	}
	s.logStats()

	return s.result(), runErr
}

func (s *Session) stream(ctx context.Context) error {
	a := s.cfg.Acquisition
	n := len(s.channels)
	scansPerRead := s.cfg.EffectiveScansPerRead()

	if ceiling := daq.MaxChannelRate(n); a.SampleRate > ceiling {
		s.log.Warn("sample rate exceeds device ceiling",
			zap.Float64("requested", a.SampleRate),
			zap.Float64("max_per_channel", ceiling),
			zap.Int("channels", n),
		)
	}

	s.stats = Stats{Channels: n, RequestedRate: a.SampleRate}

	actual, err := s.dev.StartStream(a.SampleRate, scansPerRead, s.addresses)
	if err != nil {
		s.state = Streaming
		return err
	}
	s.stats.ActualRate = actual
	s.state = Streaming
	s.log.Info("stream started",
		zap.Float64("requested_rate", a.SampleRate),
		zap.Float64("actual_rate", actual),
		zap.Int("scans_per_read", scansPerRead),
		zap.Stringer("scan_count", a.ScanCount),
	)

	s.stats.Start = s.now()
	defer func() { s.stats.End = s.now() }()

	for cycle := 0; a.ScanCount.Unbounded() || cycle < int(a.ScanCount); cycle++ {
		if ctx.Err() != nil {
			s.stats.Cancelled = true
			s.log.Info("acquisition cancelled", zap.Int("cycle", cycle))
			return nil
		}

		buf, err := s.dev.ReadCycle()
		if err != nil {
			return err
		}
		ts := s.now()

		frame, err := sample.Demux(buf, n, cycle, ts)
		if err != nil {
			return err
		}
		s.accumulate(frame)
	}
	return nil
}

// accumulate converts a frame into records and updates statistics.
func (s *Session) accumulate(frame sample.Frame) {
	for ch, samples := range frame.Channels {
		records := s.series[ch].Records
		for _, smp := range samples {
			records = append(records, s.transform.Convert(smp))
		}
		s.series[ch].Records = records
	}

	s.stats.Cycles++
	s.stats.Scans += frame.Scans
	s.stats.Skipped += frame.Skipped

	if ce := s.log.Check(zap.DebugLevel, "read cycle"); ce != nil {
		first, _ := frame.First()
		ce.Write(
			zap.Int("cycle", frame.Cycle),
			zap.Int("scans", frame.Scans),
			zap.Float64s("first_scan", first),
		)
	}
	if frame.Skipped > 0 {
		s.log.Warn("skipped samples in read cycle",
			zap.Int("cycle", frame.Cycle),
			zap.Int("skipped", frame.Skipped),
			zap.Int("total_skipped", s.stats.Skipped),
		)
	}

	for _, cb := range s.callbacks {
		if cb != nil {
			cb(frame, s.stats)
		}
	}
}

// drain stops the stream and closes the device. Both steps always run.
func (s *Session) drain() error {
	stopErr := s.dev.StopStream()
	if stopErr != nil {
		s.log.Warn("failed to stop stream", zap.Error(stopErr))
	}
	closeErr := s.dev.Close()
	if closeErr != nil {
		s.log.Warn("failed to close device", zap.Error(closeErr))
	}
	s.opened = false
	return errors.Join(stopErr, closeErr)
}

func (s *Session) logStats() {
	st := s.stats
	s.log.Info("session finished",
		zap.Stringer("state", s.state),
		zap.Int("cycles", st.Cycles),
		zap.Int("total_scans", st.Scans),
		zap.Duration("elapsed", st.Elapsed()),
		zap.Float64("scan_rate", st.ScanRate()),
		zap.Float64("sample_rate", st.SampleRate()),
		zap.Int("skipped", st.Skipped),
		zap.Bool("cancelled", st.Cancelled),
	)
}

func (s *Session) result() *Result {
	series := make([]sample.Series, len(s.series))
	copy(series, s.series)
	return &Result{
		ID:       s.id,
		Channels: s.Channels(),
		Series:   series,
		Stats:    s.stats,
		State:    s.state,
	}
}
