package meter

import "time"

// PowerMode selects which windowed statistic drives the displayed value.
type PowerMode string

const (
	PowerAverage PowerMode = "average"
	PowerPeak    PowerMode = "peak"
)

// OverloadDBm is the corrected level at which the detector is considered
// saturated. Readings at or above it carry a warning; they are still
// reported because the value may simply be pegged, not wrong.
const OverloadDBm = 12.0

// Reading is the per-tick output record handed to display sinks and the
// recorder. Window carries the full sample window, oldest first, for live
// plotting; sinks that serialise readings for transport drop it.
type Reading struct {
	Time         time.Time `json:"time"`
	RunID        string    `json:"runId"`
	FrequencyMHz float64   `json:"frequencyMhz"`

	AverageDBm   float64 `json:"averageDbm"`
	PeakDBm      float64 `json:"peakDbm"`
	CorrectedDBm float64 `json:"correctedDbm"`
	LossDB       float64 `json:"lossDb"`

	Watts      float64 `json:"watts"`
	Unit       Unit    `json:"unit"`
	Scale      int     `json:"scale"`
	RangeIndex int     `json:"rangeIndex"`

	SampleRate float64 `json:"sampleRate"` // smoothed samples per second
	Samples    uint64  `json:"samples"`    // samples acquired this run

	Overload bool     `json:"overload"`
	Partial  []string `json:"partial,omitempty"` // loss devices without table data

	Window []float64 `json:"window,omitempty"`
}
