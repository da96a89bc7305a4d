package daq

import (
	"testing"
	"time"

	"github.com/itohio/cryotherm/pkg/config"
	"github.com/itohio/cryotherm/pkg/fault"
	"github.com/itohio/cryotherm/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMock(t *testing.T, cfg config.MockConfig) *Mock {
	t.Helper()
	m := NewMock(cfg)
	require.NoError(t, m.Open())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMock_Lifecycle(t *testing.T) {
	m := openMock(t, config.MockConfig{Voltage: 0.001})

	assert.ErrorIs(t, m.Open(), fault.ErrDevice)

	require.NoError(t, m.Configure([]string{"AIN_ALL_RANGE", "STREAM_SETTLING_US"}, []float64{0.01, 0}))
	v, ok := m.Register("AIN_ALL_RANGE")
	require.True(t, ok)
	assert.Equal(t, 0.01, v)

	addrs, err := m.ResolveAddresses([]string{"AIN48", "AIN56"})
	require.NoError(t, err)

	rate, err := m.StartStream(100, 5, addrs)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rate)

	buf, err := m.ReadCycle()
	require.NoError(t, err)
	assert.Len(t, buf, 10)
	for _, v := range buf {
		assert.Equal(t, 0.001, v)
	}
	assert.Equal(t, 1, m.Cycles())

	require.NoError(t, m.StopStream())
	_, err = m.ReadCycle()
	assert.ErrorIs(t, err, fault.ErrDevice)
	require.NoError(t, m.Close())
}

func TestMock_ConfigureUnknownRegister(t *testing.T) {
	m := openMock(t, config.MockConfig{})
	err := m.Configure([]string{"AIN_ALL_RANGE", "BOGUS"}, []float64{10, 1})
	assert.ErrorIs(t, err, fault.ErrDevice)
}

func TestMock_ConfigureBeforeOpen(t *testing.T) {
	m := NewMock(config.MockConfig{})
	assert.ErrorIs(t, m.Configure(nil, nil), fault.ErrDevice)
}

func TestMock_NegotiatesRate(t *testing.T) {
	m := openMock(t, config.MockConfig{})
	addrs := make([]int, 48)

	rate, err := m.StartStream(5000, 1, addrs)
	require.NoError(t, err)
	assert.InDelta(t, 100000.0/48, rate, 1e-9)
}

func TestMock_Noise(t *testing.T) {
	m := openMock(t, config.MockConfig{Voltage: 0.0005, Noise: 0.00001})
	_, err := m.StartStream(10, 20, []int{96, 112})
	require.NoError(t, err)

	buf, err := m.ReadCycle()
	require.NoError(t, err)
	for _, v := range buf {
		assert.InDelta(t, 0.0005, v, 0.00001+1e-12)
	}
	assert.NotEqual(t, buf[0], buf[2])

	// Deterministic across instances.
	other := openMock(t, config.MockConfig{Voltage: 0.0005, Noise: 0.00001})
	_, err = other.StartStream(10, 20, []int{96, 112})
	require.NoError(t, err)
	again, err := other.ReadCycle()
	require.NoError(t, err)
	assert.Equal(t, buf, again)
}

func TestMock_SkipEvery(t *testing.T) {
	m := openMock(t, config.MockConfig{Voltage: 0.001, SkipEvery: 4})
	_, err := m.StartStream(10, 3, []int{96, 112})
	require.NoError(t, err)

	buf, err := m.ReadCycle()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.001, 0.001, 0.001, sample.Skipped, 0.001, 0.001}, buf)

	buf, err = m.ReadCycle()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.001, sample.Skipped, 0.001, 0.001, 0.001, sample.Skipped}, buf)
}

func TestMock_FailAfter(t *testing.T) {
	m := openMock(t, config.MockConfig{FailAfter: 2})
	_, err := m.StartStream(10, 1, []int{96})
	require.NoError(t, err)

	_, err = m.ReadCycle()
	require.NoError(t, err)
	_, err = m.ReadCycle()
	require.NoError(t, err)
	_, err = m.ReadCycle()
	assert.ErrorIs(t, err, fault.ErrDevice)
	assert.Contains(t, err.Error(), "read_cycle")
}

func TestMock_Realtime(t *testing.T) {
	m := openMock(t, config.MockConfig{Realtime: true})
	var slept []time.Duration
	m.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, err := m.StartStream(50, 25, []int{96})
	require.NoError(t, err)
	_, err = m.ReadCycle()
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{500 * time.Millisecond}, slept)
}
