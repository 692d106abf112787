package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rfmetrics/powermeter/internal/adc"
	"github.com/rfmetrics/powermeter/internal/meter"
)

// Config represents the main application configuration.
type Config struct {
	Bus     adc.Config    `yaml:"bus"`
	Measure MeasureConfig `yaml:"measure"`
	Storage StorageConfig `yaml:"storage"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// MeasureConfig represents the measurement run parameters.
type MeasureConfig struct {
	FrequencyMHz float64      `yaml:"frequencyMHz"`
	BatchSize    int          `yaml:"batchSize"`
	QueueDepth   int          `yaml:"queueDepth"`
	WindowSize   int          `yaml:"windowSize"`
	TickInterval TimeDuration `yaml:"tickInterval"`
	AveragingMs  int          `yaml:"averagingMs"`
	PowerMode    string       `yaml:"powerMode"`   // average or peak
	RangeMode    string       `yaml:"rangeMode"`   // auto or manual
	ManualRange  int          `yaml:"manualRange"` // band index in manual mode
	Notes        string       `yaml:"notes"`       // recorded with the run
}

// StorageConfig represents recording settings.
type StorageConfig struct {
	DBPath        string       `yaml:"dbPath"`
	MaxBatchSize  int          `yaml:"maxBatchSize"`
	FlushInterval TimeDuration `yaml:"flushInterval"`
}

// MQTTConfig represents the optional MQTT publishing settings. Credentials
// may be left out of the file and supplied through the environment instead.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         int    `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// HTTPConfig represents the optional HTTP surface: Prometheus metrics, the
// status endpoint and the live reading websocket.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LogConfig represents logging settings.
type LogConfig struct {
	Level        string       `yaml:"level"`        // debug, info, warn or error
	ReadingEvery TimeDuration `yaml:"readingEvery"` // reading log line throttle
	StatusEvery  TimeDuration `yaml:"statusEvery"`  // host status snapshot cadence
}

// SlogLevel returns the configured level. Validate has already rejected
// unknown names; anything else falls back to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadConfig reads and validates the configuration file. A .env file in the
// working directory is folded into the environment first, and environment
// variables override the MQTT connection fields, so broker credentials stay
// out of the configuration file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app.Config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("app.Config: failed to parse: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POWERMETER_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("POWERMETER_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("POWERMETER_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Measure.BatchSize == 0 {
		c.Measure.BatchSize = meter.DefaultBatchSize
	}
	if c.Measure.QueueDepth == 0 {
		c.Measure.QueueDepth = meter.DefaultQueueDepth
	}
	if c.Measure.WindowSize == 0 {
		c.Measure.WindowSize = meter.DefaultWindowSize
	}
	if c.Measure.TickInterval == 0 {
		c.Measure.TickInterval = TimeDuration(meter.DefaultTickInterval)
	}
	if c.Measure.AveragingMs == 0 {
		c.Measure.AveragingMs = meter.DefaultAveragingMillis
	}
	if c.Measure.PowerMode == "" {
		c.Measure.PowerMode = string(meter.PowerAverage)
	}
	if c.Measure.RangeMode == "" {
		c.Measure.RangeMode = string(meter.RangeAuto)
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "powermeter.db"
	}
	if c.Storage.MaxBatchSize == 0 {
		c.Storage.MaxBatchSize = 50
	}
	if c.Storage.FlushInterval == 0 {
		c.Storage.FlushInterval = TimeDuration(time.Second)
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "powermeter"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.ReadingEvery == 0 {
		c.Log.ReadingEvery = TimeDuration(time.Second)
	}
	if c.Log.StatusEvery == 0 {
		c.Log.StatusEvery = TimeDuration(time.Minute)
	}
}

func (c *Config) Validate() error {
	// Validate bus parameters
	if err := c.Bus.Validate(); err != nil {
		return err
	}

	// Validate measurement parameters
	if c.Measure.FrequencyMHz <= 0 {
		return fmt.Errorf("app.Config: measurement frequency must be positive: %g MHz", c.Measure.FrequencyMHz)
	}
	if c.Measure.BatchSize < 1 {
		return fmt.Errorf("app.Config: batch size must be at least 1: %d", c.Measure.BatchSize)
	}
	if c.Measure.QueueDepth < 1 {
		return fmt.Errorf("app.Config: queue depth must be at least 1: %d", c.Measure.QueueDepth)
	}
	if c.Measure.WindowSize < c.Measure.BatchSize {
		return fmt.Errorf("app.Config: window size must hold at least one batch: %d < %d", c.Measure.WindowSize, c.Measure.BatchSize)
	}
	if d := c.Measure.TickInterval.Duration(); d < 10*time.Millisecond {
		return fmt.Errorf("app.Config: tick interval must be at least 10ms: %s", d)
	}
	if c.Measure.AveragingMs < 1 {
		return fmt.Errorf("app.Config: averaging interval must be at least 1ms: %d", c.Measure.AveragingMs)
	}
	switch meter.PowerMode(c.Measure.PowerMode) {
	case meter.PowerAverage, meter.PowerPeak:
	default:
		return fmt.Errorf("app.Config: invalid power mode: %s, must be average or peak", c.Measure.PowerMode)
	}
	switch meter.RangeMode(c.Measure.RangeMode) {
	case meter.RangeAuto:
	case meter.RangeManual:
		if c.Measure.ManualRange < 0 || c.Measure.ManualRange >= meter.NumRanges {
			return fmt.Errorf("app.Config: manual range index out of bounds: %d, must be between 0 and %d", c.Measure.ManualRange, meter.NumRanges-1)
		}
	default:
		return fmt.Errorf("app.Config: invalid range mode: %s, must be auto or manual", c.Measure.RangeMode)
	}

	// Validate recording parameters
	if c.Storage.MaxBatchSize < 1 {
		return fmt.Errorf("app.Config: storage batch size must be at least 1: %d", c.Storage.MaxBatchSize)
	}
	if d := c.Storage.FlushInterval.Duration(); d < 100*time.Millisecond {
		return fmt.Errorf("app.Config: storage flush interval must be at least 100ms: %s", d)
	}

	// Validate MQTT parameters
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("app.Config: mqtt enabled without a broker URL")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("app.Config: invalid mqtt qos: %d, must be 0, 1 or 2", c.MQTT.QoS)
		}
	}

	// Validate log level
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("app.Config: invalid log level: %s", c.Log.Level)
	}
	if d := c.Log.StatusEvery.Duration(); d < time.Second {
		return fmt.Errorf("app.Config: status log cadence must be at least 1s: %s", d)
	}

	return nil
}
