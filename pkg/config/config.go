package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/pulsemeter/pkg/meter"
	"github.com/itohio/pulsemeter/pkg/pcnt"
)

// Peripheral backends.
const (
	BackendSerial = "serial" // counter firmware over a serial port
	BackendGPIO   = "gpio"   // GPIO lines of the host
	BackendMock   = "mock"   // simulated pulse sources
)

// Config represents the application configuration.
type Config struct {
	Backend  string         `yaml:"backend"`
	Serial   SerialConfig   `yaml:"serial"`
	Meter    MeterConfig    `yaml:"meter"`
	Sampling SamplingConfig `yaml:"sampling"`
	Mock     MockConfig     `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// SignalConfig wires one measured signal.
type SignalConfig struct {
	Pin     uint8  `yaml:"pin"`
	Channel uint8  `yaml:"channel"`
	Ref     uint32 `yaml:"ref"` // pulse rate (Hz) per unit, established by calibration
}

// SelectConfig describes the mode-select line.
type SelectConfig struct {
	Pin   uint8 `yaml:"pin"`
	Level bool  `yaml:"level"` // level that routes the current signal
}

// MeterConfig contains the meter wiring and calibration.
type MeterConfig struct {
	Power   SignalConfig  `yaml:"power"`
	Voltage SignalConfig  `yaml:"voltage"`
	Current SignalConfig  `yaml:"current"`
	Select  SelectConfig  `yaml:"select"`
	Mode    meter.Mode    `yaml:"mode"`
	Settle  time.Duration `yaml:"settle"` // wait after switching the select line
}

// SamplingConfig contains periodic acquisition parameters.
type SamplingConfig struct {
	Interval time.Duration `yaml:"interval"`
	Average  int           `yaml:"average"` // readings in the moving average (0 = disabled)
}

// MockConfig contains mocked peripheral configuration.
type MockConfig struct {
	PowerHz   float64       `yaml:"power_hz"`   // CF pulse rate
	VoltageHz float64       `yaml:"voltage_hz"` // CF1 pulse rate while voltage is selected
	CurrentHz float64       `yaml:"current_hz"` // CF1 pulse rate while current is selected
	Tick      time.Duration `yaml:"tick"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Backend: BackendSerial,
		Serial: SerialConfig{
			Port: "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			Baud: pcnt.DefaultBaudRate,
		},
		Meter: MeterConfig{
			Power:   SignalConfig{Pin: 4, Channel: 0, Ref: 100},
			Voltage: SignalConfig{Pin: 5, Channel: 1, Ref: 10},
			Current: SignalConfig{Pin: 6, Channel: 2, Ref: 5},
			Select:  SelectConfig{Pin: 12, Level: true},
			Mode:    meter.DualChannel,
			Settle:  0,
		},
		Sampling: SamplingConfig{
			Interval: time.Second,
			Average:  0,
		},
		Mock: MockConfig{
			PowerHz:   500,
			VoltageHz: 2200,
			CurrentHz: 15,
			Tick:      pcnt.DefaultTick,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills fields that must never be zero. Calibration
// references are left alone so a zero reference is reported by meter.New.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = def.Sampling.Interval
	}

	if c.Mock.Tick == 0 {
		c.Mock.Tick = def.Mock.Tick
	}
}

// NewDevice creates the peripheral selected by Backend. It is not connected.
func (c *Config) NewDevice() (pcnt.Device, error) {
	switch c.Backend {
	case BackendSerial, "":
		return pcnt.New(c.Serial.Port, c.Serial.Baud), nil
	case BackendGPIO:
		return pcnt.NewGPIOHost(), nil
	case BackendMock:
		return pcnt.NewMock(c.ToMock()), nil
	}
	return nil, fmt.Errorf("unknown backend %q", c.Backend)
}

// ToMeter converts the meter section into a meter.Config.
func (c *Config) ToMeter() meter.Config {
	m := c.Meter
	return meter.Config{
		PowerPin:       pcnt.Pin(m.Power.Pin),
		PowerChannel:   pcnt.Channel(m.Power.Channel),
		PowerRef:       m.Power.Ref,
		VoltagePin:     pcnt.Pin(m.Voltage.Pin),
		VoltageChannel: pcnt.Channel(m.Voltage.Channel),
		VoltageRef:     m.Voltage.Ref,
		CurrentPin:     pcnt.Pin(m.Current.Pin),
		CurrentChannel: pcnt.Channel(m.Current.Channel),
		CurrentRef:     m.Current.Ref,
		SelectPin:      pcnt.Pin(m.Select.Pin),
		SelectLevel:    pcnt.Level(m.Select.Level),
		Mode:           m.Mode,
		Settle:         m.Settle,
	}
}

// ToMock builds the simulated peripheral for the configured wiring. When
// voltage and current share a pin both signals are gated by the select line.
func (c *Config) ToMock() *pcnt.MockConfig {
	m := c.Meter
	selectPin := pcnt.Pin(m.Select.Pin)
	currentLevel := pcnt.Level(m.Select.Level)
	shared := m.Voltage.Pin == m.Current.Pin

	return &pcnt.MockConfig{
		Signals: []pcnt.Signal{
			{Pin: pcnt.Pin(m.Power.Pin), Hz: c.Mock.PowerHz},
			{Pin: pcnt.Pin(m.Voltage.Pin), Hz: c.Mock.VoltageHz, Gated: shared, Gate: selectPin, GateLevel: !currentLevel},
			{Pin: pcnt.Pin(m.Current.Pin), Hz: c.Mock.CurrentHz, Gated: shared, Gate: selectPin, GateLevel: currentLevel},
		},
		Tick: c.Mock.Tick,
	}
}
