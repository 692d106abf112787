// Package calibration maps raw ADC codes from the log detector to power in
// dBm. A calibration is captured per frequency by feeding the detector two
// known reference levels and recording the codes it returns; the resulting
// linear transform is selected at measurement time by frequency proximity.
package calibration

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoCalibrationData is returned when the calibration point set is empty.
var ErrNoCalibrationData = errors.New("calibration: no calibration points")

// InvalidCalibrationError reports a calibration that must not be applied:
// an ill-posed derivation input or a transform whose slope contradicts the
// detector characteristic. The detector output falls as input power rises,
// so a valid slope is always negative.
type InvalidCalibrationError struct {
	Reason string
}

func (e *InvalidCalibrationError) Error() string {
	return fmt.Sprintf("calibration: invalid calibration: %s", e.Reason)
}

// Point is a stored calibration record for a single frequency.
type Point struct {
	ID           int64
	FrequencyMHz float64
	Slope        float64 // ADC codes per dB, negative
	Intercept    float64 // dBm at code zero
	CalHigh      float64 // high reference level, dBm
	CalLow       float64 // low reference level, dBm
	HighCode     float64 // code observed at CalHigh
	LowCode      float64 // code observed at CalLow
	Quality      string
}

// Transform returns the point's code-to-dBm transform.
func (p Point) Transform() Transform {
	return Transform{Slope: p.Slope, Intercept: p.Intercept}
}

// Transform converts raw ADC codes to power in dBm.
type Transform struct {
	Slope     float64
	Intercept float64
}

// Power converts a raw ADC code to dBm.
func (t Transform) Power(code uint16) float64 {
	return float64(code)/t.Slope + t.Intercept
}

// SelectNearest returns the calibration point closest in frequency to
// targetMHz. The scan covers every point; the first of two equidistant
// points wins. An empty set returns ErrNoCalibrationData. A winning point
// with a zero or positive slope is returned together with an
// InvalidCalibrationError: the caller gets the offending record for
// reporting but must not deploy it.
func SelectNearest(points []Point, targetMHz float64) (Point, error) {
	if len(points) == 0 {
		return Point{}, ErrNoCalibrationData
	}

	best := 0
	bestDist := math.Abs(points[0].FrequencyMHz - targetMHz)
	for i := 1; i < len(points); i++ {
		if d := math.Abs(points[i].FrequencyMHz - targetMHz); d < bestDist {
			best, bestDist = i, d
		}
	}

	p := points[best]
	if p.Slope >= 0 {
		return p, &InvalidCalibrationError{
			Reason: fmt.Sprintf("slope %g at %g MHz is not negative", p.Slope, p.FrequencyMHz),
		}
	}
	return p, nil
}

// Derive computes a transform from a two-point calibration capture:
//
//	slope     = (highCode - lowCode) / (calHigh - calLow)
//	intercept = calHigh - highCode/slope
//
// Any zero input makes the system ill-posed and fails outright. A derived
// slope that is zero or positive is a policy failure, not an arithmetic one:
// the computed transform is returned alongside an InvalidCalibrationError so
// the operator can inspect the numbers, but it must not be applied.
func Derive(highCode, lowCode, calHigh, calLow float64) (Transform, error) {
	if highCode == 0 || lowCode == 0 || calHigh == 0 || calLow == 0 {
		return Transform{}, &InvalidCalibrationError{Reason: "all four reference values must be set"}
	}
	if calHigh == calLow {
		return Transform{}, &InvalidCalibrationError{Reason: "reference levels are equal"}
	}

	slope := (highCode - lowCode) / (calHigh - calLow)
	if slope == 0 {
		return Transform{}, &InvalidCalibrationError{Reason: "reference codes are equal"}
	}

	t := Transform{Slope: slope, Intercept: calHigh - highCode/slope}
	if slope > 0 {
		return t, &InvalidCalibrationError{
			Reason: fmt.Sprintf("derived slope %g is not negative", slope),
		}
	}
	return t, nil
}
