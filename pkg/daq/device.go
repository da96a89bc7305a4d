// Package daq talks to the streaming data acquisition device.
//
// A Device is used by exactly one goroutine at a time. The call sequence is
// Open, Configure, ResolveAddresses, StartStream, ReadCycle (repeated),
// StopStream, Close. Every method returns errors wrapped as
// fault.DeviceError.
package daq

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/fault"
)

// Device defines the interface for acquisition devices (real or mocked).
type Device interface {
	// Open acquires the device handle.
	Open() error
	// Configure writes named registers in order.
	Configure(names []string, values []float64) error
	// ResolveAddresses maps register names to device addresses.
	ResolveAddresses(names []string) ([]int, error)
	// StartStream starts streaming the given addresses. The device may
	// adjust the per-channel rate; the rate it settled on is returned.
	StartStream(rate float64, scansPerRead int, addresses []int) (float64, error)
	// ReadCycle blocks until the next buffer of scansPerRead interleaved
	// scans is available.
	ReadCycle() ([]float64, error)
	// StopStream stops an active stream.
	StopStream() error
	// Close releases the device handle.
	Close() error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)

// MaxAggregateRate is the device's stream ceiling in samples per second
// across all channels.
const MaxAggregateRate = 100000.0

// MaxChannelRate returns the highest per-channel rate for n channels.
func MaxChannelRate(n int) float64 {
	if n <= 0 {
		return 0
	}
	return MaxAggregateRate / float64(n)
}

// Register addresses of named setup registers.
var registers = map[string]int{
	"AIN_ALL_RANGE":           43900,
	"AIN_ALL_NEGATIVE_CH":     43902,
	"STREAM_SETTLING_US":      4008,
	"STREAM_RESOLUTION_INDEX": 4010,
}

// Address returns the register address for name. Analog inputs AIN<n> live
// at 2n (two 16-bit registers per float).
func Address(name string) (int, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if addr, ok := registers[name]; ok {
		return addr, nil
	}
	if rest, ok := strings.CutPrefix(name, "AIN"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 0 && n <= 254 {
			return 2 * n, nil
		}
	}
	return 0, fmt.Errorf("unknown register %q", name)
}

// ResolveAll maps names with Address, failing on the first unknown name.
func ResolveAll(names []string) ([]int, error) {
	addrs := make([]int, len(names))
	for i, name := range names {
		addr, err := Address(name)
		if err != nil {
			return nil, fault.Device("resolve_addresses", err)
		}
		addrs[i] = addr
	}
	return addrs, nil
}

// New builds the device selected by cfg.Device.Driver, guarded by the
// configured lock file.
func New(cfg *config.Config) (Device, error) {
	var dev Device
	switch cfg.Device.Driver {
	case config.DriverSerial:
		dev = NewSerial(cfg.Device.Port, cfg.Device.BaudRate)
	case config.DriverMock:
		dev = NewMock(cfg.Mock)
	default:
		return nil, fault.Param(fault.ErrInvalidConfiguration, "device.driver", cfg.Device.Driver, "unknown driver")
	}
	return WithLock(dev, cfg.Device.LockFile), nil
}
