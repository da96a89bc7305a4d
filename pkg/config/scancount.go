package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScanCount is the number of read cycles to perform, or Infinite.
type ScanCount int

// Infinite streams until the session is cancelled.
const Infinite ScanCount = -1

// Unbounded reports whether the count never ends the stream.
func (s ScanCount) Unbounded() bool {
	return s == Infinite
}

func (s ScanCount) String() string {
	if s.Unbounded() {
		return "infinite"
	}
	return strconv.Itoa(int(s))
}

// ParseScanCount parses an integer or the words "infinite"/"unbounded".
func ParseScanCount(text string) (ScanCount, error) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "infinite", "unbounded", "inf":
		return Infinite, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("scan count %q: expected an integer or \"infinite\"", text)
	}
	if n < 0 {
		return 0, fmt.Errorf("scan count %d: must not be negative", n)
	}
	return ScanCount(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ScanCount) UnmarshalText(text []byte) error {
	v, err := ParseScanCount(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s ScanCount) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ScanCount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: scan count must be a scalar", value.Line)
	}
	return s.UnmarshalText([]byte(value.Value))
}

// MarshalYAML implements yaml.Marshaler.
func (s ScanCount) MarshalYAML() (any, error) {
	if s.Unbounded() {
		return s.String(), nil
	}
	return int(s), nil
}

// Set implements pflag.Value so the count can be given on the command line.
func (s *ScanCount) Set(text string) error {
	return s.UnmarshalText([]byte(text))
}

// Type implements pflag.Value.
func (s *ScanCount) Type() string {
	return "scans"
}
