package sample

import (
	"fmt"
	"math"
	"time"

	"github.com/itohio/cryotherm/pkg/calibration"
	"github.com/itohio/cryotherm/pkg/channel"
	"github.com/itohio/cryotherm/pkg/fault"
)

const (
	// DividerConstant is the scale factor of the bias divider network.
	DividerConstant = 0.3535
	// MilliKelvin converts calibration temperatures (K) into mK.
	MilliKelvin = 1000.0
)

// TemperatureUnit names the unit of temperatures multiplied by scale from
// kelvin. Zero is treated as MilliKelvin.
func TemperatureUnit(scale float64) string {
	switch scale {
	case 0, MilliKelvin:
		return "mK"
	case 1:
		return "K"
	case 1e6:
		return "µK"
	default:
		return fmt.Sprintf("K×%g", scale)
	}
}

// Sample is one raw value taken from a stream buffer.
type Sample struct {
	Channel   int       // Position in the scan list
	Raw       float64   // Measured voltage (V)
	Cycle     int       // Read cycle the sample came from
	Timestamp time.Time // Timestamp of the read cycle
}

// Record is a converted sample stored in a channel series.
type Record struct {
	Timestamp   time.Time
	Cycle       int
	Voltage     float64 // V
	Resistance  float64 // Ohms
	Temperature float64 // In the transform's temperature unit (mK by default)
}

// Series is the append-only record sequence of one channel, in acquisition
// order.
type Series struct {
	Channel channel.Channel
	Records []Record
}

// Len returns the number of records.
func (s Series) Len() int {
	return len(s.Records)
}

// Params are the electrical parameters of the bias circuit.
type Params struct {
	Bias       float64 // Bias amplitude (V)
	Gain       float64 // Preamplifier gain
	RReference float64 // Bias reference resistor (ohms)
	Divider    float64 // Divider network constant, DividerConstant when zero
}

// Validate checks that resistance is well defined for these parameters.
func (p Params) Validate() error {
	if err := positive("bias", p.Bias); err != nil {
		return err
	}
	if err := positive("gain", p.Gain); err != nil {
		return err
	}
	if err := positive("r_reference", p.RReference); err != nil {
		return err
	}
	if p.Divider != 0 {
		if err := positive("divider_constant", p.Divider); err != nil {
			return err
		}
	}
	return nil
}

// Current returns the bias current in amps.
func (p Params) Current() float64 {
	return p.Bias / p.RReference
}

func (p Params) divider() float64 {
	if p.Divider == 0 {
		return DividerConstant
	}
	return p.Divider
}

func positive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fault.Param(fault.ErrInvalidConfiguration, name, v, "must be a finite number")
	}
	if v == 0 {
		return fault.Param(fault.ErrInvalidConfiguration, name, v, "must be non-zero")
	}
	if v < 0 {
		return fault.Param(fault.ErrInvalidConfiguration, name, v, "must be positive")
	}
	return nil
}

// VoltageToResistance converts a measured voltage into the thermometer
// resistance using the default divider constant.
// Formula: R = ((V / divider) / gain) / (bias / r_reference)
func VoltageToResistance(v, bias, gain, rReference float64) (float64, error) {
	p := Params{Bias: bias, Gain: gain, RReference: rReference}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return resistance(v, p), nil
}

func resistance(v float64, p Params) float64 {
	return ((v / p.divider()) / p.Gain) / p.Current()
}

// Transform converts raw voltages into resistance and temperature. It holds
// no mutable state.
type Transform struct {
	params Params
	table  *calibration.Table
	scale  float64
}

// NewTransform validates p and binds it to a calibration table. Temperatures
// are multiplied by scale; zero selects MilliKelvin.
func NewTransform(p Params, table *calibration.Table, scale float64) (*Transform, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fault.Param(fault.ErrInvalidConfiguration, "calibration", nil, "table is required")
	}
	if scale == 0 {
		scale = MilliKelvin
	}
	if err := positive("temperature_scale", scale); err != nil {
		return nil, err
	}
	return &Transform{params: p, table: table, scale: scale}, nil
}

// Params returns the bias circuit parameters.
func (t *Transform) Params() Params {
	return t.params
}

// Resistance converts voltage v into ohms.
func (t *Transform) Resistance(v float64) float64 {
	return resistance(v, t.params)
}

// Temperature converts resistance r into the configured temperature unit.
func (t *Transform) Temperature(r float64) float64 {
	return t.scale * t.table.Interpolate(r)
}

// Convert runs the full voltage -> resistance -> temperature chain.
func (t *Transform) Convert(s Sample) Record {
	r := t.Resistance(s.Raw)
	return Record{
		Timestamp:   s.Timestamp,
		Cycle:       s.Cycle,
		Voltage:     s.Raw,
		Resistance:  r,
		Temperature: t.Temperature(r),
	}
}
