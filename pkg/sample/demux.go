package sample

import (
	"fmt"
	"time"

	"github.com/itohio/cryotherm/pkg/fault"
)

// Skipped is the value the device streams in place of samples lost to a
// stream buffer overflow.
const Skipped = -9999.0

// Frame is the demultiplexed content of one read cycle.
type Frame struct {
	Cycle     int
	Timestamp time.Time
	Scans     int        // Complete scans in the buffer
	Channels  [][]Sample // Indexed by scan list position
	Skipped   int        // Sentinel samples excluded from Channels
}

// Demux splits an interleaved buffer over channelCount channels. Value i of
// the buffer belongs to channel i mod channelCount. Every sample shares the
// cycle timestamp: the device reports one timestamp per read.
func Demux(buf []float64, channelCount int, cycle int, ts time.Time) (Frame, error) {
	if channelCount <= 0 {
		return Frame{}, fault.Param(fault.ErrInvalidConfiguration, "channel_count", channelCount, "must be positive")
	}
	if len(buf)%channelCount != 0 {
		return Frame{}, fault.Param(fault.ErrMisalignedScanBuffer, "buffer", len(buf),
			fmt.Sprintf("length is not a multiple of %d channels", channelCount))
	}

	scans := len(buf) / channelCount
	frame := Frame{
		Cycle:     cycle,
		Timestamp: ts,
		Scans:     scans,
		Channels:  make([][]Sample, channelCount),
	}
	for ch := range frame.Channels {
		frame.Channels[ch] = make([]Sample, 0, scans)
	}

	for i, v := range buf {
		if v == Skipped {
			frame.Skipped++
			continue
		}
		ch := i % channelCount
		frame.Channels[ch] = append(frame.Channels[ch], Sample{
			Channel:   ch,
			Raw:       v,
			Cycle:     cycle,
			Timestamp: ts,
		})
	}

	return frame, nil
}

// First returns the first kept sample of every channel, in scan order.
// Channels with no kept samples report ok=false.
func (f Frame) First() (values []float64, ok []bool) {
	values = make([]float64, len(f.Channels))
	ok = make([]bool, len(f.Channels))
	for ch, samples := range f.Channels {
		if len(samples) > 0 {
			values[ch] = samples[0].Raw
			ok[ch] = true
		}
	}
	return values, ok
}
