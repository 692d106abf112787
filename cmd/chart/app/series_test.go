package app

import (
	"math"
	"testing"
	"time"

	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/storage"
)

func TestNewSeries(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	run := storage.Run{ID: "run-0001", FrequencyMHz: 1000}

	readings := []meter.Reading{
		{Time: base, CorrectedDBm: -40},
		{Time: base.Add(time.Second), CorrectedDBm: -35, Overload: true},
		{Time: base.Add(2 * time.Second), CorrectedDBm: -45},
	}

	s := NewSeries(run, readings)

	if !s.Start.Equal(base) {
		t.Errorf("Expected start %s, got %s", base, s.Start)
	}
	if want := base.Add(2 * time.Second); !s.End.Equal(want) {
		t.Errorf("Expected end %s, got %s", want, s.End)
	}
	if s.MinDBm != -45 {
		t.Errorf("Expected min -45 dBm, got %f", s.MinDBm)
	}
	if s.MaxDBm != -35 {
		t.Errorf("Expected max -35 dBm, got %f", s.MaxDBm)
	}
	if math.Abs(s.MeanDBm-(-40)) > 1e-9 {
		t.Errorf("Expected mean -40 dBm, got %f", s.MeanDBm)
	}
	if s.Overloads != 1 {
		t.Errorf("Expected 1 overload, got %d", s.Overloads)
	}
}

func TestNewSeries_SingleReading(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	s := NewSeries(storage.Run{ID: "run-0001"}, []meter.Reading{
		{Time: base, CorrectedDBm: -30},
	})

	if want := base.Add(time.Second); !s.End.Equal(want) {
		t.Errorf("Expected the time axis to span one second, got end %s", s.End)
	}
}

func TestSeries_PowerBounds(t *testing.T) {
	testCases := []struct {
		name     string
		min, max float64
		wantMin  float64
		wantMax  float64
	}{
		{
			name: "flat trace widens to ten dB plus margin",
			min:  -40, max: -40,
			wantMin: -45.5, wantMax: -34.5,
		},
		{
			name: "wide trace keeps its extent plus margin",
			min:  -80, max: -20,
			wantMin: -83, wantMax: -17,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Series{MinDBm: tc.min, MaxDBm: tc.max}
			gotMin, gotMax := s.PowerBounds()
			if math.Abs(gotMin-tc.wantMin) > 1e-9 || math.Abs(gotMax-tc.wantMax) > 1e-9 {
				t.Errorf("Expected bounds (%f, %f), got (%f, %f)",
					tc.wantMin, tc.wantMax, gotMin, gotMax)
			}
		})
	}
}
