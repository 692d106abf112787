package adc

import (
	"errors"
	"fmt"
	"io/fs"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ErrDeviceNotFound is returned when the SPI device node is absent: nothing
// is wired up, the interface is disabled, or the device vanished mid-run.
var ErrDeviceNotFound = errors.New("adc: device not found")

// SPI is the hardware Bus implementation on top of the periph.io host
// drivers.
type SPI struct {
	port spi.PortCloser
	conn spi.Conn
}

// Open validates the configuration, initialises the host drivers and
// connects to the converter. Unsupported clock values fail with a
// ConfigError before any bus access; a missing device node fails with
// ErrDeviceNotFound.
func Open(cfg Config) (*SPI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("adc: initialising host drivers: %w", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: opening port %q: %v", ErrDeviceNotFound, cfg.Port, err)
	}

	// Mode 3: the AD7887 expects an idle-high clock and shifts the
	// conversion out on falling edges.
	conn, err := port.Connect(physic.Frequency(cfg.ClockHz)*physic.Hertz, spi.Mode3, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("adc: configuring port %q: %w", cfg.Port, err)
	}

	return &SPI{port: port, conn: conn}, nil
}

// Transfer performs one full-duplex bus transaction.
func (s *SPI) Transfer(out []byte) ([]byte, error) {
	in := make([]byte, len(out))
	if err := s.conn.Tx(out, in); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		return nil, fmt.Errorf("adc: transfer: %w", err)
	}
	return in, nil
}

func (s *SPI) Close() error {
	return s.port.Close()
}
