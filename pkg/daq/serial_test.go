package daq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/itohio/cryotherm/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge answers host commands over an in-memory pipe.
type fakeBridge struct {
	mu       sync.Mutex
	commands []string
	handle   func(cmd string, w io.Writer)
}

func (b *fakeBridge) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

func (b *fakeBridge) serve(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := scanner.Text()
		b.mu.Lock()
		b.commands = append(b.commands, cmd)
		b.mu.Unlock()
		b.handle(cmd, conn)
	}
}

// defaultHandler accepts everything, caps the stream rate at 50 and
// streams lines data lines after STREAM.
func defaultHandler(lines ...string) func(cmd string, w io.Writer) {
	return func(cmd string, w io.Writer) {
		switch {
		case strings.HasPrefix(cmd, "SET "):
			fmt.Fprint(w, "OK\n")
		case strings.HasPrefix(cmd, "STREAM "):
			fmt.Fprint(w, "OK 50\n")
			for _, l := range lines {
				fmt.Fprint(w, l+"\n")
			}
		case cmd == "STOP":
			fmt.Fprint(w, "0.1,0.2\n")
			fmt.Fprint(w, "OK\n")
		default:
			fmt.Fprint(w, "ERR unknown command\n")
		}
	}
}

func newTestSerial(t *testing.T, handle func(cmd string, w io.Writer)) (*Serial, *fakeBridge) {
	t.Helper()
	bridge := &fakeBridge{handle: handle}
	host, remote := net.Pipe()
	go bridge.serve(remote)

	d := NewSerial("/dev/fake", 0).WithOpener(func(name string, baudRate int) (io.ReadWriteCloser, error) {
		assert.Equal(t, "/dev/fake", name)
		assert.Equal(t, DefaultBaudRate, baudRate)
		return host, nil
	})
	require.NoError(t, d.Open())
	t.Cleanup(func() { _ = d.Close() })
	return d, bridge
}

func TestNewSerial(t *testing.T) {
	d := NewSerial("/dev/ttyACM0", 115200)
	assert.NotNil(t, d)
	assert.Equal(t, "/dev/ttyACM0", d.port)
	assert.Equal(t, 115200, d.baudRate)
	assert.False(t, d.connected)
}

func TestNewSerial_Defaults(t *testing.T) {
	d := NewSerial("/dev/ttyACM0", 0)
	assert.Equal(t, DefaultBaudRate, d.baudRate)
}

func TestSerial_OpenFailure(t *testing.T) {
	d := NewSerial("/dev/missing", 0).WithOpener(func(string, int) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such file")
	})

	err := d.Open()
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrDevice))

	var de *fault.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "open", de.Op)
	assert.Contains(t, err.Error(), "/dev/missing")
}

func TestSerial_NotOpen(t *testing.T) {
	d := NewSerial("/dev/fake", 0)

	assert.ErrorIs(t, d.Configure([]string{"AIN_ALL_RANGE"}, []float64{10}), fault.ErrDevice)
	_, err := d.StartStream(10, 1, []int{96})
	assert.ErrorIs(t, err, fault.ErrDevice)
	_, err = d.ReadCycle()
	assert.ErrorIs(t, err, fault.ErrDevice)
	assert.NoError(t, d.StopStream())
	assert.NoError(t, d.Close())
}

func TestSerial_Configure(t *testing.T) {
	d, bridge := newTestSerial(t, defaultHandler())

	err := d.Configure([]string{"AIN_ALL_NEGATIVE_CH", "AIN_ALL_RANGE", "STREAM_SETTLING_US"}, []float64{199, 0.01, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SET AIN_ALL_NEGATIVE_CH 199",
		"SET AIN_ALL_RANGE 0.01",
		"SET STREAM_SETTLING_US 0",
	}, bridge.Commands())
}

func TestSerial_ConfigureRejected(t *testing.T) {
	d, _ := newTestSerial(t, func(cmd string, w io.Writer) {
		fmt.Fprint(w, "ERR value out of range\n")
	})

	err := d.Configure([]string{"AIN_ALL_RANGE"}, []float64{5})
	require.Error(t, err)

	var de *fault.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "configure", de.Op)
	assert.Contains(t, err.Error(), "AIN_ALL_RANGE")
	assert.Contains(t, err.Error(), "value out of range")
}

func TestSerial_ConfigureLengthMismatch(t *testing.T) {
	d, _ := newTestSerial(t, defaultHandler())
	assert.ErrorIs(t, d.Configure([]string{"A", "B"}, []float64{1}), fault.ErrDevice)
}

func TestSerial_Stream(t *testing.T) {
	d, bridge := newTestSerial(t, defaultHandler(
		"0.0005,0.0004,0.0005,0.0004",
		"",
		"0.0006,-9999,0.0006,0.0005",
	))

	addrs, err := d.ResolveAddresses([]string{"AIN96", "AIN104"})
	require.NoError(t, err)
	assert.Equal(t, []int{192, 208}, addrs)

	rate, err := d.StartStream(100, 2, addrs)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rate)

	buf, err := d.ReadCycle()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0005, 0.0004, 0.0005, 0.0004}, buf)

	// Blank lines are skipped.
	buf, err = d.ReadCycle()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0006, -9999, 0.0006, 0.0005}, buf)

	require.NoError(t, d.StopStream())
	// A second stop is a no-op.
	require.NoError(t, d.StopStream())

	_, err = d.ReadCycle()
	assert.ErrorIs(t, err, fault.ErrDevice)

	assert.Equal(t, []string{"STREAM 100 2 2 192,208", "STOP"}, bridge.Commands())
}

func TestSerial_StartStreamTwice(t *testing.T) {
	d, _ := newTestSerial(t, defaultHandler())
	_, err := d.StartStream(10, 1, []int{96})
	require.NoError(t, err)

	_, err = d.StartStream(10, 1, []int{96})
	assert.ErrorIs(t, err, fault.ErrDevice)
}

func TestSerial_StartStreamInvalidArgs(t *testing.T) {
	d, bridge := newTestSerial(t, defaultHandler())

	tests := []struct {
		name  string
		rate  float64
		spr   int
		addrs []int
	}{
		{"zero rate", 0, 1, []int{96}},
		{"zero scans per read", 10, 0, []int{96}},
		{"no addresses", 10, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.StartStream(tt.rate, tt.spr, tt.addrs)
			assert.ErrorIs(t, err, fault.ErrDevice)
		})
	}
	assert.Empty(t, bridge.Commands())
}

func TestSerial_StartStreamBadReply(t *testing.T) {
	d, _ := newTestSerial(t, func(cmd string, w io.Writer) {
		fmt.Fprint(w, "OK fast\n")
	})

	_, err := d.StartStream(10, 1, []int{96})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stream rate reply")
}

func TestSerial_ReadCycleBridgeError(t *testing.T) {
	d, _ := newTestSerial(t, func(cmd string, w io.Writer) {
		if strings.HasPrefix(cmd, "STREAM ") {
			fmt.Fprint(w, "OK 10\nERR buffer overflow\n")
			return
		}
		fmt.Fprint(w, "OK\n")
	})

	_, err := d.StartStream(10, 1, []int{96})
	require.NoError(t, err)

	_, err = d.ReadCycle()
	require.Error(t, err)

	var de *fault.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "read_cycle", de.Op)
	assert.Contains(t, err.Error(), "buffer overflow")
}

func TestSerial_ReadCycleConnectionLost(t *testing.T) {
	d, _ := newTestSerial(t, func(cmd string, w io.Writer) {
		fmt.Fprint(w, "OK 10\n")
		w.(io.Closer).Close()
	})

	_, err := d.StartStream(10, 1, []int{96})
	require.NoError(t, err)

	_, err = d.ReadCycle()
	assert.ErrorIs(t, err, fault.ErrDevice)
}

func TestSerial_Close(t *testing.T) {
	d, _ := newTestSerial(t, defaultHandler())
	require.NoError(t, d.Close())
	assert.False(t, d.connected)
	// Closing twice is fine.
	require.NoError(t, d.Close())
	// Commands fail once closed.
	assert.ErrorIs(t, d.Configure([]string{"AIN_ALL_RANGE"}, []float64{10}), fault.ErrDevice)
}

func TestParseDataLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []float64
		wantErr bool
	}{
		{name: "single value", line: "0.5", want: []float64{0.5}},
		{name: "interleaved", line: "1,2,3,4", want: []float64{1, 2, 3, 4}},
		{name: "spaces", line: " 1.5e-3 , -2 ", want: []float64{0.0015, -2}},
		{name: "skip sentinel", line: "0.1,-9999.0", want: []float64{0.1, -9999}},
		{name: "not a number", line: "1,abc", wantErr: true},
		{name: "empty field", line: "1,,2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDataLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"AIN0", 0, false},
		{"AIN48", 96, false},
		{"ain104", 208, false},
		{"AIN_ALL_RANGE", 43900, false},
		{"AIN_ALL_NEGATIVE_CH", 43902, false},
		{"STREAM_SETTLING_US", 4008, false},
		{"STREAM_RESOLUTION_INDEX", 4010, false},
		{"AIN", 0, true},
		{"AIN-1", 0, true},
		{"TEMP", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Address(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAll(t *testing.T) {
	addrs, err := ResolveAll([]string{"AIN48", "AIN56"})
	require.NoError(t, err)
	assert.Equal(t, []int{96, 112}, addrs)

	_, err = ResolveAll([]string{"AIN48", "NOPE"})
	require.Error(t, err)
	var de *fault.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "resolve_addresses", de.Op)
}

func TestMaxChannelRate(t *testing.T) {
	assert.Equal(t, 0.0, MaxChannelRate(0))
	assert.Equal(t, 100000.0, MaxChannelRate(1))
	assert.InDelta(t, 2083.333, MaxChannelRate(48), 1e-3)
}
