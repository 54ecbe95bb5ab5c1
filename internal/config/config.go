package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor Hardware
	I2CBus       string // periph bus name, "" = first available
	MPU6050Addr  uint16
	BusTimeoutMS int // per-transaction bound, including the wait for the bus

	// Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	AccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	GyroRange byte

	// Sample Rate Configuration
	DLPFConfig    byte // Digital Low Pass Filter configuration (0-7)
	SampleRateDiv byte // Sample rate divider (output rate = internal rate / (1 + div))

	// Acquisition
	UpdateRateMS    int     // acquisition period
	AccelNoiseFloor float64 // m/s²
	StartEnabled    bool    // acquire without waiting for "start"

	// Calibration
	CalibrationSamples  int
	CalibrationPeriodMS int

	// Health
	HealthIntervalS int

	// Logging
	LogLevel string

	// MQTT ("" broker disables publishing and the MQTT command source)
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicMotion  string
	TopicHealth  string
	TopicCommand string

	// Command Sources
	CommandStdin      bool
	CommandSerialPort string // "" disables
	CommandBaudRate   int

	// Recording
	RecordCSVPath string // "" disables

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration the firmware boots with.
func Default() *Config {
	return &Config{
		MPU6050Addr:  0x68,
		BusTimeoutMS: 1000,

		AccelRange:    0,
		GyroRange:     0,
		DLPFConfig:    3,
		SampleRateDiv: 0,

		UpdateRateMS:    50,
		AccelNoiseFloor: 0.5,

		CalibrationSamples:  100,
		CalibrationPeriodMS: 10,

		HealthIntervalS: 30,
		LogLevel:        "info",

		MQTTClientIDProducer: "dispmon-producer",
		MQTTClientIDConsole:  "dispmon-console",
		MQTTClientIDWeb:      "dispmon-web",
		MQTTClientIDDisplay:  "dispmon-display",

		TopicMotion:  "dispmon/motion",
		TopicHealth:  "dispmon/health",
		TopicCommand: "dispmon/command",

		CommandStdin:    true,
		CommandBaudRate: 115200,

		WebServerPort: 8080,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
	}
}

// Load reads the configuration file on top of Default(). Files ending in
// .yaml or .yml hold a flat mapping of the same keys; anything else is
// KEY=VALUE lines with # comments. An empty path returns the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, cfg.validate()
	}

	var err error
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = cfg.loadYAML(configPath)
	default:
		err = cfg.loadText(configPath)
	}
	if err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadText(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func (c *Config) loadYAML(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := ""
		if v := values[key]; v != nil {
			value = fmt.Sprint(v)
		}
		if err := c.setValue(strings.ToUpper(key), value); err != nil {
			return fmt.Errorf("config key %s: %w", key, err)
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Sensor Hardware
	case "I2C_BUS":
		c.I2CBus = value
	case "MPU6050_ADDR":
		addr, err := strconv.ParseUint(value, 0, 7)
		if err != nil {
			return fmt.Errorf("invalid MPU6050_ADDR %q: %w", value, err)
		}
		c.MPU6050Addr = uint16(addr)
	case "BUS_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUS_TIMEOUT_MS %q: %w", value, err)
		}
		c.BusTimeoutMS = ms

	// Sensor Ranges
	case "ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.AccelRange = byte(rangeVal)
	case "GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.GyroRange = byte(rangeVal)

	// Sample Rate Configuration
	case "DLPF_CFG":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DLPF_CFG %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("DLPF_CFG must be 0-7, got %d", val)
		}
		c.DLPFConfig = byte(val)
	case "SMPLRT_DIV":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SMPLRT_DIV %q: %w", value, err)
		}
		if val < 0 || val > 255 {
			return fmt.Errorf("SMPLRT_DIV must be 0-255, got %d", val)
		}
		c.SampleRateDiv = byte(val)

	// Acquisition
	case "UPDATE_RATE_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid UPDATE_RATE_MS %q: %w", value, err)
		}
		c.UpdateRateMS = ms
	case "ACCEL_NOISE_FLOOR":
		floor, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_NOISE_FLOOR %q: %w", value, err)
		}
		c.AccelNoiseFloor = floor
	case "START_ENABLED":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid START_ENABLED %q: %w", value, err)
		}
		c.StartEnabled = b

	// Calibration
	case "CALIBRATION_SAMPLES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_SAMPLES %q: %w", value, err)
		}
		c.CalibrationSamples = n
	case "CALIBRATION_PERIOD_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_PERIOD_MS %q: %w", value, err)
		}
		c.CalibrationPeriodMS = ms

	// Health
	case "HEALTH_INTERVAL_S":
		s, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HEALTH_INTERVAL_S %q: %w", value, err)
		}
		c.HealthIntervalS = s

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_MOTION":
		c.TopicMotion = value
	case "TOPIC_HEALTH":
		c.TopicHealth = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// Command Sources
	case "COMMAND_STDIN":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid COMMAND_STDIN %q: %w", value, err)
		}
		c.CommandStdin = b
	case "COMMAND_SERIAL_PORT":
		c.CommandSerialPort = value
	case "COMMAND_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid COMMAND_BAUD_RATE %q: %w", value, err)
		}
		c.CommandBaudRate = rate

	// Recording
	case "RECORD_CSV_PATH":
		c.RecordCSVPath = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks cross-field constraints and required values.
func (c *Config) validate() error {
	if c.UpdateRateMS <= 0 {
		return fmt.Errorf("UPDATE_RATE_MS must be positive, got %d", c.UpdateRateMS)
	}
	if c.AccelNoiseFloor < 0 {
		return fmt.Errorf("ACCEL_NOISE_FLOOR must not be negative, got %g", c.AccelNoiseFloor)
	}
	if c.CalibrationSamples <= 0 {
		return fmt.Errorf("CALIBRATION_SAMPLES must be positive, got %d", c.CalibrationSamples)
	}
	if c.CalibrationPeriodMS < 0 {
		return fmt.Errorf("CALIBRATION_PERIOD_MS must not be negative, got %d", c.CalibrationPeriodMS)
	}
	if c.BusTimeoutMS <= 0 {
		return fmt.Errorf("BUS_TIMEOUT_MS must be positive, got %d", c.BusTimeoutMS)
	}
	if c.HealthIntervalS <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL_S must be positive, got %d", c.HealthIntervalS)
	}
	if c.CommandSerialPort != "" && c.CommandBaudRate <= 0 {
		return fmt.Errorf("COMMAND_BAUD_RATE is required with COMMAND_SERIAL_PORT")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if c.MQTTBroker != "" && c.TopicMotion == "" {
		return fmt.Errorf("TOPIC_MOTION is required with MQTT_BROKER")
	}
	return nil
}

// UpdatePeriod is UpdateRateMS as a duration.
func (c *Config) UpdatePeriod() time.Duration {
	return time.Duration(c.UpdateRateMS) * time.Millisecond
}

// CalibrationPeriod is CalibrationPeriodMS as a duration.
func (c *Config) CalibrationPeriod() time.Duration {
	return time.Duration(c.CalibrationPeriodMS) * time.Millisecond
}

// BusTimeout is BusTimeoutMS as a duration.
func (c *Config) BusTimeout() time.Duration {
	return time.Duration(c.BusTimeoutMS) * time.Millisecond
}

// HealthInterval is HealthIntervalS as a duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalS) * time.Second
}

// Sensor returns the measurement setup to apply at startup.
func (c *Config) Sensor() SensorSettings {
	return SensorSettings{
		AccelRange:    c.AccelRange,
		GyroRange:     c.GyroRange,
		DLPF:          c.DLPFConfig,
		SampleRateDiv: c.SampleRateDiv,
	}
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
