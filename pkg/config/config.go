package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/ledavg/pkg/sample"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// LEDAVG_TIMING_SAMPLE_PERIOD=50ms or LEDAVG_HARDWARE_BACKEND=periph.
const EnvPrefix = "LEDAVG"

// Fixed channel windows. The pipeline is built for exactly these sizes, and
// for a queue of sample.DefaultCapacity.
const (
	WindowA = 16
	WindowB = 32
)

// Hardware backends.
const (
	BackendSim    = "sim"
	BackendPeriph = "periph"
	BackendBridge = "bridge"
)

// Config represents the application configuration.
type Config struct {
	Timing     TimingConfig     `yaml:"timing"`
	Queue      QueueConfig      `yaml:"queue"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Simulation SimulationConfig `yaml:"simulation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// TimingConfig contains the periods of the periodic tasks.
type TimingConfig struct {
	SamplePeriod time.Duration `yaml:"sample_period" envconfig:"SAMPLE_PERIOD"` // conversion trigger
	MuxPeriod    time.Duration `yaml:"mux_period" envconfig:"MUX_PERIOD"`       // one digit position per tick
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"` // delay after each button check
}

// QueueConfig contains the shared sample queue parameters.
type QueueConfig struct {
	Capacity int `yaml:"capacity" envconfig:"CAPACITY"`
}

// ChannelsConfig contains the averaging windows.
type ChannelsConfig struct {
	WindowA int `yaml:"window_a" envconfig:"WINDOW_A"`
	WindowB int `yaml:"window_b" envconfig:"WINDOW_B"`
}

// HardwareConfig selects and describes the board.
type HardwareConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND"` // "sim", "periph" or "bridge"

	// Bridge is the serial link to the microcontroller running firmware/.
	Bridge SerialConfig `yaml:"bridge"`

	I2CBus     string  `yaml:"i2c_bus" envconfig:"I2C_BUS"` // empty selects the first bus
	ADCAddress uint16  `yaml:"adc_address" envconfig:"ADC_ADDRESS"`
	VRef       float64 `yaml:"vref" envconfig:"VREF"` // full-scale input voltage

	Buttons        []string `yaml:"buttons" envconfig:"BUTTONS"`   // S1, S2
	Digits         []string `yaml:"digits" envconfig:"DIGITS"`     // position 0 (most significant) .. 3
	Segments       []string `yaml:"segments" envconfig:"SEGMENTS"` // a .. g
	DigitActiveLow bool     `yaml:"digit_active_low" envconfig:"DIGIT_ACTIVE_LOW"`
}

// SimulationConfig drives the simulated board.
type SimulationConfig struct {
	InputA            uint16        `yaml:"input_a" envconfig:"INPUT_A"` // raw 12-bit level
	InputB            uint16        `yaml:"input_b" envconfig:"INPUT_B"`
	Noise             uint16        `yaml:"noise" envconfig:"NOISE"` // peak deviation in counts
	ConversionLatency time.Duration `yaml:"conversion_latency" envconfig:"CONVERSION_LATENCY"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// TelemetryConfig contains the diagnostic outputs.
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"` // 0 disables telemetry
	Log      bool          `yaml:"log" envconfig:"LOG"`
	Serial   SerialConfig  `yaml:"serial"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port" envconfig:"PORT"` // empty disables the telemetry sink
	BaudRate int    `yaml:"baud_rate" envconfig:"BAUD_RATE"`
}

// MQTTConfig contains MQTT publisher configuration.
type MQTTConfig struct {
	Broker   string `yaml:"broker" envconfig:"BROKER"` // empty disables the sink
	Topic    string `yaml:"topic" envconfig:"TOPIC"`
	ClientID string `yaml:"client_id" envconfig:"CLIENT_ID"`
	Username string `yaml:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	QoS      byte   `yaml:"qos" envconfig:"QOS"`
}

// MetricsConfig contains the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"LISTEN"` // empty disables the endpoint
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Timing: TimingConfig{
			SamplePeriod: 100 * time.Millisecond,
			MuxPeriod:    5 * time.Millisecond,
			PollInterval: 20 * time.Millisecond,
		},
		Queue: QueueConfig{
			Capacity: sample.DefaultCapacity,
		},
		Channels: ChannelsConfig{
			WindowA: WindowA,
			WindowB: WindowB,
		},
		Hardware: HardwareConfig{
			Backend: BackendSim,
			Bridge: SerialConfig{
				BaudRate: 115200,
			},
			ADCAddress: 0x48,
			VRef:       3.3,
			Buttons:    []string{"GPIO5", "GPIO6"},
			Digits:     []string{"GPIO12", "GPIO13", "GPIO19", "GPIO26"},
			Segments:   []string{"GPIO4", "GPIO17", "GPIO27", "GPIO22", "GPIO23", "GPIO24", "GPIO25"},
		},
		Simulation: SimulationConfig{
			InputA:            1000,
			InputB:            3000,
			Noise:             8,
			ConversionLatency: 200 * time.Microsecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Interval: time.Second,
			Log:      false,
			Serial: SerialConfig{
				BaudRate: 115200,
			},
			MQTT: MQTTConfig{
				Topic: "ledavg",
			},
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. If the file doesn't exist or fields are missing, it uses default
// values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
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

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Channels.WindowA != WindowA || c.Channels.WindowB != WindowB {
		return fmt.Errorf("channel windows must be %d/%d, got %d/%d",
			WindowA, WindowB, c.Channels.WindowA, c.Channels.WindowB)
	}
	if c.Queue.Capacity != sample.DefaultCapacity {
		return fmt.Errorf("queue capacity must be %d, got %d", sample.DefaultCapacity, c.Queue.Capacity)
	}
	periods := []struct {
		name string
		d    time.Duration
	}{
		{"sample_period", c.Timing.SamplePeriod},
		{"mux_period", c.Timing.MuxPeriod},
		{"poll_interval", c.Timing.PollInterval},
	}
	for _, p := range periods {
		if p.d <= 0 {
			return fmt.Errorf("timing.%s must be positive, got %v", p.name, p.d)
		}
	}
	if c.Telemetry.Interval < 0 {
		return fmt.Errorf("telemetry.interval must not be negative, got %v", c.Telemetry.Interval)
	}

	switch c.Hardware.Backend {
	case BackendSim:
	case BackendBridge:
		if c.Hardware.Bridge.Port == "" {
			return fmt.Errorf("hardware.bridge.port is required for the bridge backend")
		}
	case BackendPeriph:
		if len(c.Hardware.Buttons) != 2 {
			return fmt.Errorf("hardware.buttons needs 2 pins, got %d", len(c.Hardware.Buttons))
		}
		if len(c.Hardware.Digits) != 4 {
			return fmt.Errorf("hardware.digits needs 4 pins, got %d", len(c.Hardware.Digits))
		}
		if len(c.Hardware.Segments) != 7 {
			return fmt.Errorf("hardware.segments needs 7 pins, got %d", len(c.Hardware.Segments))
		}
	default:
		return fmt.Errorf("unknown hardware backend %q", c.Hardware.Backend)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Timing.SamplePeriod == 0 {
		c.Timing.SamplePeriod = def.Timing.SamplePeriod
	}
	if c.Timing.MuxPeriod == 0 {
		c.Timing.MuxPeriod = def.Timing.MuxPeriod
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = def.Timing.PollInterval
	}

	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = def.Queue.Capacity
	}

	if c.Channels.WindowA == 0 {
		c.Channels.WindowA = def.Channels.WindowA
	}
	if c.Channels.WindowB == 0 {
		c.Channels.WindowB = def.Channels.WindowB
	}

	if c.Hardware.Backend == "" {
		c.Hardware.Backend = def.Hardware.Backend
	}
	if c.Hardware.Bridge.BaudRate == 0 {
		c.Hardware.Bridge.BaudRate = def.Hardware.Bridge.BaudRate
	}
	if c.Hardware.ADCAddress == 0 {
		c.Hardware.ADCAddress = def.Hardware.ADCAddress
	}
	if c.Hardware.VRef == 0 {
		c.Hardware.VRef = def.Hardware.VRef
	}
	if len(c.Hardware.Buttons) == 0 {
		c.Hardware.Buttons = def.Hardware.Buttons
	}
	if len(c.Hardware.Digits) == 0 {
		c.Hardware.Digits = def.Hardware.Digits
	}
	if len(c.Hardware.Segments) == 0 {
		c.Hardware.Segments = def.Hardware.Segments
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}

	if c.Telemetry.Serial.BaudRate == 0 {
		c.Telemetry.Serial.BaudRate = def.Telemetry.Serial.BaudRate
	}
	if c.Telemetry.MQTT.Topic == "" {
		c.Telemetry.MQTT.Topic = def.Telemetry.MQTT.Topic
	}
}
