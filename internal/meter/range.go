package meter

import (
	"fmt"
	"math"
)

// Unit is the power unit of a display band.
type Unit string

const (
	UnitPicowatt  Unit = "pW"
	UnitNanowatt  Unit = "nW"
	UnitMicrowatt Unit = "µW"
	UnitMilliwatt Unit = "mW"
	UnitWatt      Unit = "W"
	UnitKilowatt  Unit = "kW"
)

// RangeMode selects how the display band is chosen.
type RangeMode string

const (
	RangeAuto   RangeMode = "auto"
	RangeManual RangeMode = "manual"
)

var (
	rangeUnits = []Unit{
		UnitPicowatt,
		UnitNanowatt,
		UnitMicrowatt,
		UnitMilliwatt,
		UnitWatt,
		UnitKilowatt,
	}

	// rangeThresholds are the band lower edges in dBm: each band covers
	// [threshold, threshold+30) and spans three decades of its unit.
	rangeThresholds = []float64{-90, -60, -30, 0, 30, 60}
)

// NumRanges is the number of display bands.
var NumRanges = len(rangeUnits)

// Range describes the display band for a corrected power level.
type Range struct {
	Index int     `json:"index"`
	Unit  Unit    `json:"unit"`
	Watts float64 `json:"watts"` // power expressed in the band's unit
	Scale int     `json:"scale"` // meter full-scale decade: 10, 100 or 1000
}

// AutoRange returns the display band index for a corrected dBm value: the
// index of the first threshold strictly greater than the value, stepped
// back by one unless already at zero, so each band's lower edge belongs to
// that band. When no threshold is greater the scan fails with
// ErrRangeExceeded.
func AutoRange(dBm float64) (int, error) {
	for i, threshold := range rangeThresholds {
		if threshold > dBm {
			if i > 0 {
				return i - 1, nil
			}
			return 0, nil
		}
	}
	return 0, ErrRangeExceeded
}

// RangeFor resolves the display band for a corrected power level. In
// manual mode the user-selected index is echoed without scanning.
func RangeFor(dBm float64, mode RangeMode, manualIndex int) (Range, error) {
	var index int
	switch mode {
	case RangeManual:
		if manualIndex < 0 || manualIndex >= NumRanges {
			return Range{}, fmt.Errorf("meter: manual range index out of bounds: %d", manualIndex)
		}
		index = manualIndex

	case RangeAuto, "":
		var err error
		if index, err = AutoRange(dBm); err != nil {
			return Range{}, err
		}

	default:
		return Range{}, fmt.Errorf("meter: unknown range mode: %s", mode)
	}

	watts := math.Pow(10, (dBm-rangeThresholds[index])/10)

	var scale int
	switch {
	case watts <= 10:
		scale = 10
	case watts <= 100:
		scale = 100
	default:
		scale = 1000
	}

	return Range{
		Index: index,
		Unit:  rangeUnits[index],
		Watts: watts,
		Scale: scale,
	}, nil
}
