package adc

import (
	"fmt"
	"slices"
)

// DefaultClockHz is the sampling clock the meter runs at unless configured
// otherwise: fast enough for a tight loop, slow enough for clean edges on
// jumper wiring.
const DefaultClockHz int64 = 1_953_000

// ClockSpeeds lists the SPI clock rates the Raspberry Pi driver can actually
// produce: the core clock divided by powers of two. Requesting anything else
// silently rounds on some kernels, so the meter refuses non-listed values
// outright.
var ClockSpeeds = []int64{
	7_629,
	15_200,
	30_500,
	61_000,
	122_000,
	244_000,
	488_000,
	976_000,
	1_953_000,
	3_900_000,
	7_800_000,
	15_600_000,
	31_200_000,
}

// ConfigError reports invalid bus parameters. It is fatal to start-up and
// recoverable by retrying with a corrected configuration.
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// Config holds the bus parameters for opening the converter.
type Config struct {
	// Port is the SPI port registry name, for example "SPI0.0". Empty
	// selects the first available port.
	Port string `yaml:"port" json:"port"`

	// ClockHz is the SPI clock rate and must be one of ClockSpeeds.
	ClockHz int64 `yaml:"clockHz" json:"clockHz"`
}

func (c *Config) Validate() error {
	if c.ClockHz == 0 {
		c.ClockHz = DefaultClockHz
	}
	if !slices.Contains(ClockSpeeds, c.ClockHz) {
		return NewConfigError(fmt.Sprintf("adc.Config: unsupported clock %d Hz, accepted values: %v", c.ClockHz, ClockSpeeds))
	}
	return nil
}
