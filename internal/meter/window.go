package meter

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PrefillDBm seeds a fresh window with the detector's idle floor so the
// first ticks average against a plausible no-signal level instead of zero.
const PrefillDBm = -75.0

// RollingWindow is a fixed-capacity window of calibrated power samples.
// Push shifts the existing samples left and writes the batch at the tail,
// so the newest samples always occupy the end. The window has a single
// owner (the aggregator); it does no locking of its own.
type RollingWindow struct {
	data []float64
}

// NewRollingWindow creates a window holding capacity samples, prefilled
// with PrefillDBm.
func NewRollingWindow(capacity int) (*RollingWindow, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("meter: invalid window capacity: %d", capacity)
	}

	w := RollingWindow{data: make([]float64, capacity)}
	w.Fill(PrefillDBm)
	return &w, nil
}

// Fill overwrites every sample with v.
func (w *RollingWindow) Fill(v float64) {
	for i := range w.data {
		w.data[i] = v
	}
}

// Push appends a batch at the tail, evicting the oldest samples. A batch
// longer than the window keeps only its newest tail.
func (w *RollingWindow) Push(batch []float64) {
	n := len(batch)
	if n == 0 {
		return
	}
	if n >= len(w.data) {
		copy(w.data, batch[n-len(w.data):])
		return
	}

	copy(w.data, w.data[n:])
	copy(w.data[len(w.data)-n:], batch)
}

// MeanRecent returns the arithmetic mean of the newest n samples, with n
// clamped to [1, capacity].
func (w *RollingWindow) MeanRecent(n int) float64 {
	if n < 1 {
		n = 1
	}
	if n > len(w.data) {
		n = len(w.data)
	}
	return stat.Mean(w.data[len(w.data)-n:], nil)
}

// Max returns the largest sample currently in the window.
func (w *RollingWindow) Max() float64 {
	return floats.Max(w.data)
}

// Snapshot returns a copy of the window, oldest sample first.
func (w *RollingWindow) Snapshot() []float64 {
	out := make([]float64, len(w.data))
	copy(out, w.data)
	return out
}

// Capacity returns the fixed window size.
func (w *RollingWindow) Capacity() int {
	return len(w.data)
}
