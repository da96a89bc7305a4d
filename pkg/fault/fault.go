// Package fault defines the error kinds shared by the acquisition pipeline.
//
// Every error returned by the pipeline matches exactly one of the sentinel
// kinds with errors.Is. Parameter and boundary failures carry the name of the
// offending parameter so the caller can report it.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration     = errors.New("invalid configuration")
	ErrInvalidChannelSpec       = errors.New("invalid channel spec")
	ErrMalformedCalibrationData = errors.New("malformed calibration data")
	ErrMisalignedScanBuffer     = errors.New("misaligned scan buffer")
	ErrInvalidWindowSize        = errors.New("invalid window size")
	ErrDevice                   = errors.New("device error")
)

// ParamError reports which parameter or boundary check failed.
type ParamError struct {
	Kind   error  // One of the Err* sentinels
	Param  string // Parameter name as it appears in configuration
	Value  any    // Offending value, nil when not applicable
	Reason string
}

// Param builds a ParamError of the given kind.
func Param(kind error, param string, value any, reason string) error {
	return &ParamError{Kind: kind, Param: param, Value: value, Reason: reason}
}

func (e *ParamError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Param, e.Reason)
	}
	return fmt.Sprintf("%v: %s=%v: %s", e.Kind, e.Param, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return e.Kind
}

// DeviceError wraps a failure reported by the acquisition device.
type DeviceError struct {
	Op  string // Driver operation, e.g. "start_stream"
	Err error
}

// Device wraps err as a DeviceError for operation op. A nil err returns nil.
func Device(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) && de.Op == op {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrDevice, e.Op, e.Err)
}

// Unwrap exposes both ErrDevice and the driver's own error.
func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}
