package meter

import (
	"errors"
	"fmt"
)

var (
	// ErrRangeExceeded is returned when the corrected power sits outside
	// every display band: the sensor is missing, disconnected or driven
	// past saturation. The measurement stops rather than clamping.
	ErrRangeExceeded = errors.New("meter: power outside all range bands, sensor missing or overloaded")

	// ErrAlreadyRunning is returned by Run when a measurement is active.
	ErrAlreadyRunning = errors.New("meter: measurement already running")
)

// TransferFaultError reports an invalid conversion that aborted a sampling
// run. A single bad transfer ends the run; restarting is the operator's
// call, not the hot loop's.
type TransferFaultError struct {
	Status byte
	Code   uint16
}

func (e *TransferFaultError) Error() string {
	return fmt.Sprintf("meter: transfer fault: status 0x%02X, code %d", e.Status, e.Code)
}
