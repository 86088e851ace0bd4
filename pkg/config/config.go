package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Bath       BathConfig       `yaml:"bath"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Thermistor ThermistorConfig `yaml:"thermistor"`
	Run        RunConfig        `yaml:"run"`
	Sinks      SinksConfig      `yaml:"sinks"`
	API        APIConfig        `yaml:"api"`
	Mock       MockConfig       `yaml:"mock"`
}

// BathConfig contains the reference bath serial configuration.
type BathConfig struct {
	VendorID    uint16        `yaml:"vendor_id"`
	ProductID   uint16        `yaml:"product_id"`
	BaudRate    int           `yaml:"baud_rate"`
	SettleDelay time.Duration `yaml:"settle_delay"` // Pause after each command before reading
}

// SensorConfig contains the measurement unit (MU) serial and streaming configuration.
type SensorConfig struct {
	VendorID       uint16        `yaml:"vendor_id"`
	ProductID      uint16        `yaml:"product_id"`
	BaudRate       int           `yaml:"baud_rate"`
	LocalID        uint8         `yaml:"local_id"`
	MUID           uint8         `yaml:"mu_id"` // Address used by the stop command
	SensorID       uint8         `yaml:"sensor_id"`
	FrequencyHz    uint16        `yaml:"frequency_hz"`
	PacketSize     uint8         `yaml:"packet_size"`
	HandshakeDelay time.Duration `yaml:"handshake_delay"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	QueueLimit     int           `yaml:"queue_limit"` // Max queued chunks, 0 = unbounded
}

// ThermistorConfig contains the NTC conversion coefficients.
type ThermistorConfig struct {
	Numerator float64 `yaml:"numerator"`
	Beta      float64 `yaml:"beta"`
	T0        float64 `yaml:"t0"` // Reference temperature in Kelvin
}

// RunConfig contains run timing and the default step list.
type RunConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Steps        []StepConfig  `yaml:"steps"`
}

// StepConfig is a single setpoint of a run.
type StepConfig struct {
	Target       float32 `yaml:"target"`
	DwellMinutes uint32  `yaml:"dwell_minutes"`
}

// SinksConfig selects where snapshots are published.
type SinksConfig struct {
	Log   bool        `yaml:"log"`
	File  FileConfig  `yaml:"file"`
	Kafka KafkaConfig `yaml:"kafka"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

// FileConfig configures the JSON-lines snapshot file. Empty path disables it.
type FileConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig configures the Kafka snapshot publisher. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MQTTConfig configures the MQTT snapshot publisher. Empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// APIConfig configures the HTTP control API.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// MockConfig contains simulated device configuration.
type MockConfig struct {
	AmbientC       float64       `yaml:"ambient_c"`       // Starting bath temperature (°C)
	TimeConstant   time.Duration `yaml:"time_constant"`   // First-order lag toward setpoint
	StableBand     float64       `yaml:"stable_band"`     // |T - setpoint| within which the bath may report stable (°C)
	StableAfter    time.Duration `yaml:"stable_after"`    // Time inside the band before reporting stable
	NoiseLevel     float64       `yaml:"noise_level"`     // Reading noise amplitude (°C)
	SensorUID      uint32        `yaml:"sensor_uid"`      // Extended UID returned by the simulated MU
	SensorRawValue uint16        `yaml:"sensor_raw_value"` // Raw sample streamed by the simulated MU
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Bath: BathConfig{
			VendorID:    0x0403,
			ProductID:   0x6001,
			BaudRate:    9600,
			SettleDelay: 100 * time.Millisecond,
		},
		Sensor: SensorConfig{
			VendorID:       0x10c4,
			ProductID:      0xea60,
			BaudRate:       115200,
			LocalID:        0x00,
			MUID:           0x01,
			SensorID:       0x04,
			FrequencyHz:    100,
			PacketSize:     128,
			HandshakeDelay: 100 * time.Millisecond,
			PollInterval:   10 * time.Millisecond,
			QueueLimit:     0,
		},
		Thermistor: ThermistorConfig{
			Numerator: 3.3,
			Beta:      4190.0,
			T0:        298.15,
		},
		Run: RunConfig{
			TickInterval: time.Second,
			Steps: []StepConfig{
				{Target: 20.0, DwellMinutes: 1},
				{Target: 45.0, DwellMinutes: 2},
			},
		},
		Sinks: SinksConfig{
			Log: true,
			Kafka: KafkaConfig{
				Topic: "thermocal.snapshots",
			},
			MQTT: MQTTConfig{
				Topic:    "thermocal/snapshots",
				ClientID: "thermocal",
			},
		},
		API: APIConfig{
			Listen: "127.0.0.1:8086",
		},
		Mock: MockConfig{
			AmbientC:       22.0,
			TimeConstant:   20 * time.Second,
			StableBand:     0.05,
			StableAfter:    10 * time.Second,
			NoiseLevel:     0.01,
			SensorUID:      0x00C0FFEE,
			SensorRawValue: 2,
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

// ensureDefaults ensures that all required fields have default values if missing.
// Ids that may legitimately be zero (local_id, sensor_id, mu_id) are left alone.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Bath.VendorID == 0 {
		c.Bath.VendorID = def.Bath.VendorID
	}
	if c.Bath.ProductID == 0 {
		c.Bath.ProductID = def.Bath.ProductID
	}
	if c.Bath.BaudRate == 0 {
		c.Bath.BaudRate = def.Bath.BaudRate
	}

	if c.Sensor.VendorID == 0 {
		c.Sensor.VendorID = def.Sensor.VendorID
	}
	if c.Sensor.ProductID == 0 {
		c.Sensor.ProductID = def.Sensor.ProductID
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Sensor.FrequencyHz == 0 {
		c.Sensor.FrequencyHz = def.Sensor.FrequencyHz
	}
	if c.Sensor.PacketSize == 0 {
		c.Sensor.PacketSize = def.Sensor.PacketSize
	}
	if c.Sensor.PollInterval == 0 {
		c.Sensor.PollInterval = def.Sensor.PollInterval
	}

	if c.Thermistor.Numerator == 0 {
		c.Thermistor.Numerator = def.Thermistor.Numerator
	}
	if c.Thermistor.Beta == 0 {
		c.Thermistor.Beta = def.Thermistor.Beta
	}
	if c.Thermistor.T0 == 0 {
		c.Thermistor.T0 = def.Thermistor.T0
	}

	if c.Run.TickInterval == 0 {
		c.Run.TickInterval = def.Run.TickInterval
	}

	if c.API.Listen == "" {
		c.API.Listen = def.API.Listen
	}

	if c.Mock.TimeConstant == 0 {
		c.Mock.TimeConstant = def.Mock.TimeConstant
	}
	if c.Mock.StableBand == 0 {
		c.Mock.StableBand = def.Mock.StableBand
	}
}
