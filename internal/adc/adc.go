// Package adc drives the AD7887 12-bit ADC that digitises the log
// detector's output. The converter is clocked over SPI with a two-byte
// frame per conversion; framing and decoding are pure functions so the
// sampling loop can run against any Bus implementation.
package adc

// Bus is the transfer surface of the converter's serial bus. Transfer
// clocks len(out) bytes out while reading the same number back.
type Bus interface {
	Transfer(out []byte) ([]byte, error)
	Close() error
}

const (
	// ControlWord configures the AD7887 for single-channel conversion with
	// the on-chip reference enabled and power-down between conversions. It
	// is clocked out in both bytes of the frame so back-to-back transfers
	// keep the register stable.
	ControlWord byte = 0b00100000

	// NoiseThreshold is the highest first reply byte that can carry a real
	// conversion. The detector's no-signal ceiling sits below code 3584;
	// a high byte above this means the bus clocked in noise or the input
	// is floating.
	NoiseThreshold byte = 13

	// CodeMax is the full-scale 12-bit conversion code.
	CodeMax uint16 = 1<<12 - 1
)

// RawSample is one decoded conversion: the 12-bit code and the frame's
// leading byte, which doubles as a status indicator.
type RawSample struct {
	Code   uint16
	Status byte
	Valid  bool
}

// Frame returns the two-byte command frame that clocks one conversion out
// of the converter.
func Frame() [2]byte {
	return [2]byte{ControlWord, ControlWord}
}

// DecodeFrame assembles a conversion from a two-byte reply. The code is
// built exactly as the converter streams it, high byte first; Valid is
// false when the leading byte exceeds NoiseThreshold.
func DecodeFrame(b0, b1 byte) RawSample {
	return RawSample{
		Code:   uint16(b0)<<8 | uint16(b1),
		Status: b0,
		Valid:  b0 <= NoiseThreshold,
	}
}
