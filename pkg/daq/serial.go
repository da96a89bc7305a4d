package daq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/itohio/cryotherm/pkg/fault"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the bridge's default line rate.
	DefaultBaudRate = 921600
	// maxDrainLines bounds the data lines discarded while stopping a stream.
	maxDrainLines  = 100000
	readBufferSize = 1 << 16
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Opener opens the serial line to the stream bridge.
type Opener func(name string, baudRate int) (io.ReadWriteCloser, error)

// Serial drives a stream bridge over a serial line using a text protocol:
//
//	host:   SET <name> <value>
//	host:   STREAM <rate> <scans_per_read> <count> <addr>,<addr>,...
//	host:   STOP
//	bridge: OK [value] | ERR <message>
//	bridge: <v>,<v>,...   one data line per read cycle while streaming
type Serial struct {
	port     string
	baudRate int
	open     Opener

	conn      io.ReadWriteCloser
	reader    *bufio.Reader
	mu        sync.Mutex
	connected bool
	streaming bool
}

// NewSerial creates a new Serial device for the specified port and baud rate.
func NewSerial(port string, baudRate int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		open:     openSerial,
	}
}

// WithOpener replaces the function used to open the line.
func (d *Serial) WithOpener(open Opener) *Serial {
	d.open = open
	return d
}

func openSerial(name string, baudRate int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baudRate})
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}

	return result, nil
}

// Open opens the serial port.
func (d *Serial) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fault.Device("open", errors.New("already open"))
	}

	conn, err := d.open(d.port, d.baudRate)
	if err != nil {
		return fault.Device("open", fmt.Errorf("failed to open serial port %s: %w", d.port, err))
	}

	d.conn = conn
	d.reader = bufio.NewReaderSize(conn, readBufferSize)
	d.connected = true
	return nil
}

// Configure writes each register with a SET command.
func (d *Serial) Configure(names []string, values []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(names) != len(values) {
		return fault.Device("configure", fmt.Errorf("%d names for %d values", len(names), len(values)))
	}
	if err := d.checkConnected(); err != nil {
		return fault.Device("configure", err)
	}

	for i, name := range names {
		cmd := fmt.Sprintf("SET %s %s", name, formatFloat(values[i]))
		if _, err := d.command(cmd); err != nil {
			return fault.Device("configure", fmt.Errorf("%s: %w", name, err))
		}
	}
	return nil
}

// ResolveAddresses maps names to register addresses.
func (d *Serial) ResolveAddresses(names []string) ([]int, error) {
	return ResolveAll(names)
}

// StartStream starts the bridge stream and returns the rate it accepted.
func (d *Serial) StartStream(rate float64, scansPerRead int, addresses []int) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkConnected(); err != nil {
		return 0, fault.Device("start_stream", err)
	}
	if d.streaming {
		return 0, fault.Device("start_stream", errors.New("already streaming"))
	}
	if err := checkStreamArgs(rate, scansPerRead, addresses); err != nil {
		return 0, fault.Device("start_stream", err)
	}

	addrs := make([]string, len(addresses))
	for i, a := range addresses {
		addrs[i] = strconv.Itoa(a)
	}
	cmd := fmt.Sprintf("STREAM %s %d %d %s", formatFloat(rate), scansPerRead, len(addresses), strings.Join(addrs, ","))

	reply, err := d.command(cmd)
	if err != nil {
		return 0, fault.Device("start_stream", err)
	}
	actual, err := strconv.ParseFloat(reply, 64)
	if err != nil || actual <= 0 {
		return 0, fault.Device("start_stream", fmt.Errorf("invalid stream rate reply %q", reply))
	}

	d.streaming = true
	return actual, nil
}

// ReadCycle reads one data line. It blocks until the bridge sends it.
func (d *Serial) ReadCycle() ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkConnected(); err != nil {
		return nil, fault.Device("read_cycle", err)
	}
	if !d.streaming {
		return nil, fault.Device("read_cycle", errors.New("not streaming"))
	}

	line, err := d.readLine()
	if err != nil {
		return nil, fault.Device("read_cycle", err)
	}
	if msg, ok := strings.CutPrefix(line, "ERR"); ok {
		return nil, fault.Device("read_cycle", fmt.Errorf("bridge: %s", strings.TrimSpace(msg)))
	}

	values, err := parseDataLine(line)
	if err != nil {
		return nil, fault.Device("read_cycle", err)
	}
	return values, nil
}

// StopStream sends STOP and discards data lines still in flight.
func (d *Serial) StopStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected || !d.streaming {
		return nil
	}
	d.streaming = false

	if err := d.write("STOP"); err != nil {
		return fault.Device("stop_stream", err)
	}
	for range maxDrainLines {
		line, err := d.readLine()
		if err != nil {
			return fault.Device("stop_stream", err)
		}
		if done, reply := parseReply(line); done {
			if reply != nil {
				return fault.Device("stop_stream", reply)
			}
			return nil
		}
	}
	return fault.Device("stop_stream", errors.New("no acknowledgement after draining stream"))
}

// Close closes the serial port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	d.reader = nil
	d.connected = false
	d.streaming = false

	if err != nil {
		return fault.Device("close", fmt.Errorf("failed to close serial port: %w", err))
	}
	return nil
}

func (d *Serial) checkConnected() error {
	if !d.connected {
		return errors.New("not open")
	}
	return nil
}

// command sends cmd and waits for its OK/ERR reply.
func (d *Serial) command(cmd string) (string, error) {
	if err := d.write(cmd); err != nil {
		return "", err
	}
	line, err := d.readLine()
	if err != nil {
		return "", err
	}
	if rest, ok := strings.CutPrefix(line, "OK"); ok {
		return strings.TrimSpace(rest), nil
	}
	if msg, ok := strings.CutPrefix(line, "ERR"); ok {
		return "", fmt.Errorf("bridge rejected %q: %s", cmd, strings.TrimSpace(msg))
	}
	return "", fmt.Errorf("unexpected reply to %q: %q", cmd, line)
}

func (d *Serial) write(cmd string) error {
	if _, err := io.WriteString(d.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

// readLine returns the next non-empty line without its terminator.
func (d *Serial) readLine() (string, error) {
	for {
		line, err := d.reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil {
			if line != "" && errors.Is(err, io.EOF) {
				return line, nil
			}
			return "", fmt.Errorf("failed to read from serial port: %w", err)
		}
		if line != "" {
			return line, nil
		}
	}
}

// parseReply recognises OK/ERR lines. It returns done=false for data lines.
func parseReply(line string) (done bool, err error) {
	if strings.HasPrefix(line, "OK") {
		return true, nil
	}
	if msg, ok := strings.CutPrefix(line, "ERR"); ok {
		return true, fmt.Errorf("bridge: %s", strings.TrimSpace(msg))
	}
	return false, nil
}

// parseDataLine parses a line of comma-separated voltages.
// Example: 0.000512,0.000498,-9999,0.000505
func parseDataLine(line string) ([]float64, error) {
	parts := strings.Split(line, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %d in data line: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func checkStreamArgs(rate float64, scansPerRead int, addresses []int) error {
	if !(rate > 0) {
		return fmt.Errorf("invalid rate %g", rate)
	}
	if scansPerRead <= 0 {
		return fmt.Errorf("invalid scans per read %d", scansPerRead)
	}
	if len(addresses) == 0 {
		return errors.New("no addresses to stream")
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
