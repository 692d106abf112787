// Package pathloss sums the frequency-dependent insertion loss of the
// passive components (attenuators, couplers, cables) sitting between the
// measurement plane and the detector. Loss tables store negative dB values;
// the summed total is returned as a positive magnitude which the aggregator
// adds back onto the detector reading.
package pathloss

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// Point is one row of a device's loss table.
type Point struct {
	FrequencyMHz float64
	LossDB       float64 // negative: attenuation at this frequency
}

// Device is a signal-path component with a measured loss table.
type Device struct {
	ID        int64
	Name      string
	InUse     bool
	NominalDB float64 // rated loss, informational only
	Points    []Point
}

// Result is the outcome of summing the active devices at one frequency.
type Result struct {
	LossDB  float64  // positive magnitude of the total insertion loss
	Partial []string // in-use devices that had no table data
}

// IsPartial reports whether any active device could not contribute.
func (r Result) IsPartial() bool { return len(r.Partial) > 0 }

// Interpolate evaluates a loss table at targetMHz. Frequencies outside the
// table's span clamp to the nearest edge value. The table does not need to
// arrive sorted.
func Interpolate(targetMHz float64, points []Point) (float64, error) {
	switch len(points) {
	case 0:
		return 0, fmt.Errorf("pathloss: empty loss table")
	case 1:
		return points[0].LossDB, nil
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FrequencyMHz < sorted[j].FrequencyMHz
	})

	// The interpolator requires strictly increasing X values; a duplicated
	// frequency keeps the last stored row.
	xs := make([]float64, 0, len(sorted))
	ys := make([]float64, 0, len(sorted))
	for _, p := range sorted {
		if n := len(xs); n > 0 && xs[n-1] == p.FrequencyMHz {
			ys[n-1] = p.LossDB
			continue
		}
		xs = append(xs, p.FrequencyMHz)
		ys = append(ys, p.LossDB)
	}
	if len(xs) == 1 {
		return ys[0], nil
	}

	x := targetMHz
	if x < xs[0] {
		x = xs[0]
	} else if x > xs[len(xs)-1] {
		x = xs[len(xs)-1]
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("pathloss: fitting loss table: %w", err)
	}
	return pl.Predict(x), nil
}

// TotalLoss filters devices to those in use, interpolates each loss table at
// targetMHz and sums the results. A device that is in use but has an empty
// table contributes zero and is reported through Result.Partial instead of
// failing the whole sum.
func TotalLoss(targetMHz float64, devices []Device) (Result, error) {
	var res Result
	var sum float64

	for _, d := range devices {
		if !d.InUse {
			continue
		}
		if len(d.Points) == 0 {
			res.Partial = append(res.Partial, d.Name)
			continue
		}

		v, err := Interpolate(targetMHz, d.Points)
		if err != nil {
			return Result{}, fmt.Errorf("pathloss: device %q: %w", d.Name, err)
		}
		sum += v
	}

	if sum != 0 {
		res.LossDB = -sum
	}
	return res, nil
}
