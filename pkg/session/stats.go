package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/itohio/cryotherm/pkg/channel"
	"github.com/itohio/cryotherm/pkg/fault"
	"github.com/itohio/cryotherm/pkg/sample"
)

// Stats are the running totals of a session.
type Stats struct {
	Channels      int
	Cycles        int // Read cycles completed
	Scans         int // Scans received, one value per channel each
	Skipped       int // Sentinel samples excluded
	RequestedRate float64
	ActualRate    float64 // Per-channel rate the device settled on
	Start         time.Time
	End           time.Time
	Cancelled     bool
}

// Elapsed returns the streaming duration.
func (s Stats) Elapsed() time.Duration {
	if s.Start.IsZero() || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// ScanRate returns scans per second over the elapsed time.
func (s Stats) ScanRate() float64 {
	sec := s.Elapsed().Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(s.Scans) / sec
}

// SampleRate returns samples per second across all channels.
func (s Stats) SampleRate() float64 {
	return s.ScanRate() * float64(s.Channels)
}

// SkippedScans expresses skipped samples in scans.
func (s Stats) SkippedScans() float64 {
	if s.Channels == 0 {
		return 0
	}
	return float64(s.Skipped) / float64(s.Channels)
}

// Samples returns the number of samples received, skipped ones included.
func (s Stats) Samples() int {
	return s.Scans * s.Channels
}

// Result is what a session leaves behind, complete or partial.
type Result struct {
	ID       uuid.UUID
	Channels []channel.Channel
	Series   []sample.Series // Indexed like Channels
	Stats    Stats
	State    State
}

// WindowSize resolves a configured window size. Zero derives one second of
// samples from the negotiated rate.
func (r *Result) WindowSize(requested int) int {
	if requested != 0 {
		return requested
	}
	return sample.WindowSize(r.Stats.ActualRate)
}

// Averages windows every series. See Result.WindowSize for windowSize.
func (r *Result) Averages(windowSize int) ([][]sample.Window, error) {
	size := r.WindowSize(windowSize)
	if size <= 0 {
		return nil, fault.Param(fault.ErrInvalidWindowSize, "window_size", size, "must be positive")
	}
	out := make([][]sample.Window, len(r.Series))
	for i, series := range r.Series {
		windows, err := sample.Average(series, size)
		if err != nil {
			return nil, err
		}
		out[i] = windows
	}
	return out, nil
}

// Records returns the number of stored records over all channels.
func (r *Result) Records() int {
	n := 0
	for _, s := range r.Series {
		n += s.Len()
	}
	return n
}
