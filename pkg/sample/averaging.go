package sample

import (
	"time"

	"github.com/itohio/cryotherm/pkg/fault"
)

// Window is the mean of a fixed-size run of consecutive records.
type Window struct {
	Channel     string
	Index       int
	Count       int       // Records averaged; less than Size for a trailing partial window
	Size        int       // Requested window size
	Timestamp   time.Time // Timestamp of the first record in the window
	Voltage     float64
	Resistance  float64
	Temperature float64
}

// Partial reports whether the window holds fewer records than requested.
func (w Window) Partial() bool {
	return w.Count < w.Size
}

// Average splits series into non-overlapping windows of windowSize records
// taken in series order and reduces each to its mean. A trailing window with
// fewer records is averaged over the records it has and marked Partial.
func Average(series Series, windowSize int) ([]Window, error) {
	if windowSize <= 0 {
		return nil, fault.Param(fault.ErrInvalidWindowSize, "window_size", windowSize, "must be positive")
	}

	records := series.Records
	windows := make([]Window, 0, (len(records)+windowSize-1)/windowSize)

	for start := 0; start < len(records); start += windowSize {
		end := min(start+windowSize, len(records))
		w := averageRecords(records[start:end])
		w.Channel = series.Channel.Name
		w.Index = len(windows)
		w.Size = windowSize
		windows = append(windows, w)
	}

	return windows, nil
}

// averageRecords averages a non-empty slice of records.
// Uses the first record's timestamp.
func averageRecords(records []Record) Window {
	var sumVoltage, sumResistance, sumTemperature float64
	for _, r := range records {
		sumVoltage += r.Voltage
		sumResistance += r.Resistance
		sumTemperature += r.Temperature
	}

	n := float64(len(records))
	return Window{
		Count:       len(records),
		Timestamp:   records[0].Timestamp,
		Voltage:     sumVoltage / n,
		Resistance:  sumResistance / n,
		Temperature: sumTemperature / n,
	}
}

// WindowSize derives a one-second window from a per-channel sample rate.
func WindowSize(rate float64) int {
	n := int(rate + 0.5)
	if n < 1 {
		return 1
	}
	return n
}
