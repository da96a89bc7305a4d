package config

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/itohio/cryotherm/pkg/fault"
)

// Supported drivers.
const (
	DriverSerial = "serial"
	DriverMock   = "mock"
)

// Analog front-end choices.
var (
	// NegativeChannels: 199 selects single ended, 1 differential.
	NegativeChannels = []int{199, 1}
	// Ranges are the instrumentation amplifier spans: x1, x10, x100, x1000.
	Ranges = []float64{10, 1, 0.1, 0.01}
)

// MaxResolutionIndex is the highest stream resolution index.
const MaxResolutionIndex = 8

// Validate checks every field that can be checked without the device.
// The first failing check is returned as a fault.ParamError.
func (c *Config) Validate() error {
	switch c.Device.Driver {
	case DriverSerial:
		if strings.TrimSpace(c.Device.Port) == "" {
			return invalid("device.port", c.Device.Port, "required for the serial driver")
		}
		if c.Device.BaudRate <= 0 {
			return invalid("device.baud_rate", c.Device.BaudRate, "must be positive")
		}
	case DriverMock:
	default:
		return invalid("device.driver", c.Device.Driver, fmt.Sprintf("must be %q or %q", DriverSerial, DriverMock))
	}

	a := c.Acquisition
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"acquisition.bias", a.Bias},
		{"acquisition.r_reference", a.RReference},
		{"acquisition.gain", a.Gain},
		{"acquisition.divider_constant", a.DividerConstant},
		{"acquisition.sample_rate", a.SampleRate},
	} {
		if err := positive(f.name, f.value); err != nil {
			return err
		}
	}
	if strings.TrimSpace(a.Channels) == "" {
		return fault.Param(fault.ErrInvalidChannelSpec, "acquisition.channels", nil, "empty request")
	}
	if a.ScanCount <= 0 && !a.ScanCount.Unbounded() {
		return invalid("acquisition.scan_count", a.ScanCount, "must be positive or \"infinite\"")
	}
	if a.ScansPerRead < 0 {
		return invalid("acquisition.scans_per_read", a.ScansPerRead, "must not be negative")
	}

	if !slices.Contains(NegativeChannels, c.Analog.NegativeChannel) {
		return invalid("analog.negative_channel", c.Analog.NegativeChannel, "must be 199 (single ended) or 1 (differential)")
	}
	if !slices.Contains(Ranges, c.Analog.Range) {
		return invalid("analog.range", c.Analog.Range, "must be one of 10, 1, 0.1, 0.01")
	}
	if c.Analog.ResolutionIndex < 0 || c.Analog.ResolutionIndex > MaxResolutionIndex {
		return invalid("analog.resolution_index", c.Analog.ResolutionIndex, fmt.Sprintf("must be 0-%d", MaxResolutionIndex))
	}
	if c.Analog.SettlingUS < 0 || math.IsNaN(c.Analog.SettlingUS) {
		return invalid("analog.settling_us", c.Analog.SettlingUS, "must not be negative")
	}

	if strings.TrimSpace(c.Calibration.File) == "" {
		return invalid("calibration.file", c.Calibration.File, "required")
	}
	if c.Calibration.TemperatureColumn < 0 || c.Calibration.ResistanceColumn < 0 ||
		c.Calibration.TemperatureColumn == c.Calibration.ResistanceColumn {
		return invalid("calibration.columns",
			fmt.Sprintf("%d,%d", c.Calibration.TemperatureColumn, c.Calibration.ResistanceColumn),
			"must be distinct and non-negative")
	}
	if err := positive("calibration.resistance_scale", c.Calibration.ResistanceScale); err != nil {
		return err
	}
	if err := positive("calibration.temperature_scale", c.Calibration.TemperatureScale); err != nil {
		return err
	}

	if c.Averaging.WindowSize < 0 {
		return fault.Param(fault.ErrInvalidWindowSize, "averaging.window_size", c.Averaging.WindowSize, "must not be negative")
	}

	if c.Mock.SkipEvery < 0 {
		return invalid("mock.skip_every", c.Mock.SkipEvery, "must not be negative")
	}
	if c.Mock.FailAfter < 0 {
		return invalid("mock.fail_after", c.Mock.FailAfter, "must not be negative")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format", c.Log.Format, "must be \"console\" or \"json\"")
	}

	return nil
}

// SetupNames and SetupValues are the device registers written before
// streaming, in write order.
func (c *Config) SetupNames() []string {
	return []string{"AIN_ALL_NEGATIVE_CH", "AIN_ALL_RANGE", "STREAM_RESOLUTION_INDEX", "STREAM_SETTLING_US"}
}

// SetupValues returns the values for SetupNames.
func (c *Config) SetupValues() []float64 {
	return []float64{
		float64(c.Analog.NegativeChannel),
		c.Analog.Range,
		float64(c.Analog.ResolutionIndex),
		c.Analog.SettlingUS,
	}
}

// EffectiveScansPerRead returns scans_per_read, defaulting to one second of
// data per read.
func (c *Config) EffectiveScansPerRead() int {
	if c.Acquisition.ScansPerRead > 0 {
		return c.Acquisition.ScansPerRead
	}
	return max(int(c.Acquisition.SampleRate), 1)
}

func invalid(param string, value any, reason string) error {
	return fault.Param(fault.ErrInvalidConfiguration, param, value, reason)
}

func positive(param string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return invalid(param, v, "must be a positive number")
	}
	return nil
}
