package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device" toml:"device"`
	Acquisition AcquisitionConfig `yaml:"acquisition" toml:"acquisition"`
	Analog      AnalogConfig      `yaml:"analog" toml:"analog"`
	Calibration CalibrationConfig `yaml:"calibration" toml:"calibration"`
	Averaging   AveragingConfig   `yaml:"averaging" toml:"averaging"`
	Output      OutputConfig      `yaml:"output" toml:"output"`
	Mock        MockConfig        `yaml:"mock" toml:"mock"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// DeviceConfig selects and addresses the acquisition device.
type DeviceConfig struct {
	Driver   string `yaml:"driver" toml:"driver"` // "serial" or "mock"
	Port     string `yaml:"port" toml:"port"`
	BaudRate int    `yaml:"baud_rate" toml:"baud_rate"`
	LockFile string `yaml:"lock_file" toml:"lock_file"` // Empty disables locking
}

// AcquisitionConfig contains the bias circuit and stream parameters.
type AcquisitionConfig struct {
	Bias            float64   `yaml:"bias" toml:"bias"`               // Peak-to-peak bias amplitude (V)
	RReference      float64   `yaml:"r_reference" toml:"r_reference"` // Bias reference resistor (ohms)
	Gain            float64   `yaml:"gain" toml:"gain"`               // Preamplifier gain
	DividerConstant float64   `yaml:"divider_constant" toml:"divider_constant"`
	Channels        string    `yaml:"channels" toml:"channels"`       // "all" or "48,56,..."
	SampleRate      float64   `yaml:"sample_rate" toml:"sample_rate"` // Per channel (Hz)
	ScanCount       ScanCount `yaml:"scan_count" toml:"scan_count"`   // Read cycles or "infinite"
	ScansPerRead    int       `yaml:"scans_per_read" toml:"scans_per_read"`
}

// AnalogConfig contains the analog front-end parameters applied to every
// input before streaming.
type AnalogConfig struct {
	NegativeChannel int     `yaml:"negative_channel" toml:"negative_channel"` // 199 single ended, 1 differential
	Range           float64 `yaml:"range" toml:"range"`                       // ±V: 10, 1, 0.1 or 0.01
	ResolutionIndex int     `yaml:"resolution_index" toml:"resolution_index"` // 0 = default
	SettlingUS      float64 `yaml:"settling_us" toml:"settling_us"`           // 0 = auto
}

// CalibrationConfig locates the resistance to temperature table.
type CalibrationConfig struct {
	File              string  `yaml:"file" toml:"file"`
	TemperatureColumn int     `yaml:"temperature_column" toml:"temperature_column"`
	ResistanceColumn  int     `yaml:"resistance_column" toml:"resistance_column"`
	ResistanceScale   float64 `yaml:"resistance_scale" toml:"resistance_scale"`   // File unit to ohms
	TemperatureScale  float64 `yaml:"temperature_scale" toml:"temperature_scale"` // Kelvin to output unit
}

// AveragingConfig contains window averaging parameters.
type AveragingConfig struct {
	WindowSize int `yaml:"window_size" toml:"window_size"` // 0 = one second at the negotiated rate
}

// OutputConfig selects the persistence sinks.
type OutputConfig struct {
	Dir    string     `yaml:"dir" toml:"dir"`
	CSV    bool       `yaml:"csv" toml:"csv"`
	SQLite string     `yaml:"sqlite" toml:"sqlite"` // Database path, empty disables
	MQTT   MQTTConfig `yaml:"mqtt" toml:"mqtt"`
}

// MQTTConfig contains broker settings; an empty server disables publishing.
type MQTTConfig struct {
	Server   string `yaml:"server" toml:"server"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Topic    string `yaml:"topic" toml:"topic"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	Voltage   float64 `yaml:"voltage" toml:"voltage"`       // Mean simulated voltage (V)
	Noise     float64 `yaml:"noise" toml:"noise"`           // Noise amplitude (V)
	SkipEvery int     `yaml:"skip_every" toml:"skip_every"` // Emit a skipped sample every N samples, 0 = never
	FailAfter int     `yaml:"fail_after" toml:"fail_after"` // Fail reads after N cycles, 0 = never
	Realtime  bool    `yaml:"realtime" toml:"realtime"`     // Pace reads at the stream rate
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "console" or "json"
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Driver:   "serial",
			Port:     "/dev/ttyACM0",
			BaudRate: 921600,
			LockFile: filepath.Join(os.TempDir(), "cryotherm.lock"),
		},
		Acquisition: AcquisitionConfig{
			Bias:            0, // Must be provided
			RReference:      1e8,
			Gain:            160 * 0.4,
			DividerConstant: 0.3535,
			Channels:        "all",
			SampleRate:      100,
			ScanCount:       10,
			ScansPerRead:    0,
		},
		Analog: AnalogConfig{
			NegativeChannel: 199,
			Range:           10.0,
			ResolutionIndex: 0,
			SettlingUS:      0,
		},
		Calibration: CalibrationConfig{
			File:              "temp_and_res_lists.csv",
			TemperatureColumn: 0,
			ResistanceColumn:  1,
			ResistanceScale:   1,
			TemperatureScale:  1000,
		},
		Averaging: AveragingConfig{
			WindowSize: 0,
		},
		Output: OutputConfig{
			Dir: "data",
			CSV: true,
			MQTT: MQTTConfig{
				ClientID: "cryotherm",
				Topic:    "cryotherm",
			},
		},
		Mock: MockConfig{
			Voltage:   0.0005,
			Noise:     0.00001,
			SkipEvery: 0,
			FailAfter: 0,
			Realtime:  false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist or fields are missing, it uses default values.
// The result is not validated; call Validate once overrides are applied.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(filename) {
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML or TOML file, chosen by extension.
func (c *Config) Save(filename string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(filename) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}

// ensureDefaults fills string fields whose empty value means unset. Numeric
// fields absent from the file already hold their defaults; an explicit zero
// is kept so Validate can reject it.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Driver == "" {
		c.Device.Driver = def.Device.Driver
	}
	if c.Device.Port == "" {
		c.Device.Port = def.Device.Port
	}
	if strings.TrimSpace(c.Acquisition.Channels) == "" {
		c.Acquisition.Channels = def.Acquisition.Channels
	}
	if c.Calibration.File == "" {
		c.Calibration.File = def.Calibration.File
	}

	if c.Output.Dir == "" {
		c.Output.Dir = def.Output.Dir
	}
	if c.Output.MQTT.ClientID == "" {
		c.Output.MQTT.ClientID = def.Output.MQTT.ClientID
	}
	if c.Output.MQTT.Topic == "" {
		c.Output.MQTT.Topic = def.Output.MQTT.Topic
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}
