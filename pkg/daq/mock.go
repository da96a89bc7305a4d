package daq

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/fault"
	"github.com/itohio/cryotherm/pkg/sample"
)

// Mock simulates the acquisition device for testing and development.
//
// Every channel reads cfg.Voltage plus a deterministic ripple of amplitude
// cfg.Noise, so repeated runs produce identical data.
type Mock struct {
	cfg config.MockConfig

	mu        sync.Mutex
	connected bool
	streaming bool
	registers map[string]float64

	rate         float64
	scansPerRead int
	channels     int
	cycles       int
	emitted      int // samples produced, used for skip placement
	sleep        func(time.Duration)
}

// NewMock creates a new mocked device instance.
func NewMock(cfg config.MockConfig) *Mock {
	return &Mock{
		cfg:       cfg,
		registers: make(map[string]float64),
		sleep:     time.Sleep,
	}
}

// Open marks the device as connected.
func (m *Mock) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fault.Device("open", errors.New("already open"))
	}
	m.connected = true
	return nil
}

// Configure stores register values. Unknown names are rejected.
func (m *Mock) Configure(names []string, values []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fault.Device("configure", errors.New("not open"))
	}
	if len(names) != len(values) {
		return fault.Device("configure", fmt.Errorf("%d names for %d values", len(names), len(values)))
	}
	for i, name := range names {
		if _, err := Address(name); err != nil {
			return fault.Device("configure", err)
		}
		m.registers[name] = values[i]
	}
	return nil
}

// Register returns the last value written to name.
func (m *Mock) Register(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.registers[name]
	return v, ok
}

// ResolveAddresses maps names to register addresses.
func (m *Mock) ResolveAddresses(names []string) ([]int, error) {
	return ResolveAll(names)
}

// StartStream accepts the requested rate up to the aggregate ceiling.
func (m *Mock) StartStream(rate float64, scansPerRead int, addresses []int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, fault.Device("start_stream", errors.New("not open"))
	}
	if m.streaming {
		return 0, fault.Device("start_stream", errors.New("already streaming"))
	}
	if err := checkStreamArgs(rate, scansPerRead, addresses); err != nil {
		return 0, fault.Device("start_stream", err)
	}

	m.rate = math.Min(rate, MaxChannelRate(len(addresses)))
	m.scansPerRead = scansPerRead
	m.channels = len(addresses)
	m.cycles = 0
	m.streaming = true
	return m.rate, nil
}

// ReadCycle returns scansPerRead interleaved scans of simulated voltages.
func (m *Mock) ReadCycle() ([]float64, error) {
	m.mu.Lock()
	if !m.streaming {
		m.mu.Unlock()
		return nil, fault.Device("read_cycle", errors.New("not streaming"))
	}
	if m.cfg.FailAfter > 0 && m.cycles >= m.cfg.FailAfter {
		m.mu.Unlock()
		return nil, fault.Device("read_cycle", fmt.Errorf("simulated failure after %d cycles", m.cycles))
	}

	buf := make([]float64, m.scansPerRead*m.channels)
	for i := range buf {
		buf[i] = m.value(i)
		m.emitted++
	}
	m.cycles++
	pause := time.Duration(float64(m.scansPerRead) / m.rate * float64(time.Second))
	m.mu.Unlock()

	if m.cfg.Realtime {
		m.sleep(pause)
	}
	return buf, nil
}

// value produces sample i of the current cycle.
func (m *Mock) value(i int) float64 {
	if m.cfg.SkipEvery > 0 && (m.emitted+1)%m.cfg.SkipEvery == 0 {
		return sample.Skipped
	}
	ch := i % m.channels
	scan := m.cycles*m.scansPerRead + i/m.channels
	ripple := math.Sin(float64(scan)*0.37 + float64(ch)*1.1)
	return m.cfg.Voltage + m.cfg.Noise*ripple
}

// Cycles returns the number of read cycles served since StartStream.
func (m *Mock) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// StopStream stops the simulated stream.
func (m *Mock) StopStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = false
	return nil
}

// Close marks the device as disconnected.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = false
	m.connected = false
	return nil
}
