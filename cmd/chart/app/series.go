package app

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/storage"
)

// Series is a run's readings prepared for rendering, with the display
// statistics precomputed over the corrected power values.
type Series struct {
	Run      storage.Run
	Readings []meter.Reading

	Start time.Time
	End   time.Time

	MinDBm  float64
	MaxDBm  float64
	MeanDBm float64

	Overloads int
}

// NewSeries computes the display statistics for a run's readings. Readings
// must be ordered by time and non-empty.
func NewSeries(run storage.Run, readings []meter.Reading) *Series {
	values := make([]float64, len(readings))
	var overloads int
	for i, r := range readings {
		values[i] = r.CorrectedDBm
		if r.Overload {
			overloads++
		}
	}

	start := readings[0].Time
	end := readings[len(readings)-1].Time
	if !end.After(start) {
		// A single reading still needs a non-degenerate time axis.
		end = start.Add(time.Second)
	}

	return &Series{
		Run:       run,
		Readings:  readings,
		Start:     start,
		End:       end,
		MinDBm:    floats.Min(values),
		MaxDBm:    floats.Max(values),
		MeanDBm:   stat.Mean(values, nil),
		Overloads: overloads,
	}
}

// PowerBounds returns the vertical axis range: the data extent widened to
// at least a 10 dB span so a flat trace does not fill the frame, then
// padded by 5% on each side.
func (s *Series) PowerBounds() (min, max float64) {
	min, max = s.MinDBm, s.MaxDBm

	span := max - min
	if span < 10 {
		pad := (10 - span) / 2
		min -= pad
		max += pad
		span = 10
	}

	margin := span * 0.05
	return min - margin, max + margin
}
