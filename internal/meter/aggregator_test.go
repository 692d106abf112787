package meter

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rfmetrics/powermeter/internal/pathloss"
)

// newTestAggregator wires an aggregator to an idle sampler whose queue the
// tests fill by hand.
func newTestAggregator(t *testing.T, cfg AggregateConfig, windowSize int) (*Sampler, *Aggregator) {
	t.Helper()

	s := NewSampler(&fixedBus{code: 0}, testTransform, 25, 8, nil)
	w, err := NewRollingWindow(windowSize)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}
	return s, NewAggregator(s, w, cfg)
}

func repeatBatch(v float64, n int) []float64 {
	b := make([]float64, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestAggregator_EmptyTickRepeatsLastReading(t *testing.T) {
	_, agg := newTestAggregator(t, AggregateConfig{FrequencyMHz: 1000}, 100)

	t0 := time.Unix(1000, 0)
	for i, now := range []time.Time{t0, t0.Add(100 * time.Millisecond)} {
		r, err := agg.Tick(now)
		if err != nil {
			t.Fatalf("Tick %d failed: %v", i, err)
		}

		// Nothing was acquired, so the prefill level is reported as-is
		if r.AverageDBm != PrefillDBm {
			t.Errorf("Tick %d: expected average %.1f dBm, got %.4f", i, PrefillDBm, r.AverageDBm)
		}
		if r.CorrectedDBm != PrefillDBm {
			t.Errorf("Tick %d: expected corrected %.1f dBm, got %.4f", i, PrefillDBm, r.CorrectedDBm)
		}
		if !r.Time.Equal(now) {
			t.Errorf("Tick %d: expected timestamp %v, got %v", i, now, r.Time)
		}
		if r.Unit != UnitPicowatt || r.RangeIndex != 0 {
			t.Errorf("Tick %d: expected bottom band pW/0, got %s/%d", i, r.Unit, r.RangeIndex)
		}
	}
}

func TestAggregator_TickFoldsBatches(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{FrequencyMHz: 1000}, 100)

	s.out <- repeatBatch(-30, 25)
	s.samples.Add(25)

	r, err := agg.Tick(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if r.AverageDBm != -30 {
		t.Errorf("Expected average -30 dBm, got %.4f", r.AverageDBm)
	}
	if r.PeakDBm != -30 {
		t.Errorf("Expected peak -30 dBm, got %.4f", r.PeakDBm)
	}
	if r.CorrectedDBm != -30 {
		t.Errorf("Expected corrected -30 dBm with no loss, got %.4f", r.CorrectedDBm)
	}
	if r.Unit != UnitMicrowatt || r.RangeIndex != 2 {
		t.Errorf("Expected µW band index 2, got %s/%d", r.Unit, r.RangeIndex)
	}
	if math.Abs(r.Watts-1.0) > 1e-12 {
		t.Errorf("Expected 1.0 µW at the band reference, got %.6f", r.Watts)
	}
	if r.Scale != 10 {
		t.Errorf("Expected meter scale 10, got %d", r.Scale)
	}
	if r.Samples != 25 {
		t.Errorf("Expected 25 samples, got %d", r.Samples)
	}
}

func TestAggregator_RateSmoothingAndAveraging(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{FrequencyMHz: 1000, AveragingMs: 100}, 100)

	t0 := time.Unix(1000, 0)

	// First tick carries no elapsed interval, so no rate sample yet
	s.out <- repeatBatch(-20, 25)
	r, err := agg.Tick(t0)
	if err != nil {
		t.Fatalf("Tick 1 failed: %v", err)
	}
	if r.SampleRate != 0 {
		t.Errorf("Tick 1: expected rate 0 before an interval elapsed, got %.1f", r.SampleRate)
	}
	if r.AverageDBm != -20 {
		t.Errorf("Tick 1: expected average -20 dBm, got %.4f", r.AverageDBm)
	}

	// Two batches over 100ms: 500 samples/s instantaneous; at 100ms
	// averaging that means the newest 50 samples
	s.out <- repeatBatch(-40, 25)
	s.out <- repeatBatch(-40, 25)
	r, err = agg.Tick(t0.Add(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("Tick 2 failed: %v", err)
	}
	if r.SampleRate != 500 {
		t.Errorf("Tick 2: expected smoothed rate 500, got %.1f", r.SampleRate)
	}
	if r.AverageDBm != -40 {
		t.Errorf("Tick 2: expected average over newest 50 samples -40 dBm, got %.4f", r.AverageDBm)
	}
	if r.PeakDBm != -20 {
		t.Errorf("Tick 2: expected window peak -20 dBm, got %.4f", r.PeakDBm)
	}

	// An empty tick contributes a zero rate sample and repeats the last
	// measurement instead of fabricating one
	r, err = agg.Tick(t0.Add(200 * time.Millisecond))
	if err != nil {
		t.Fatalf("Tick 3 failed: %v", err)
	}
	if r.SampleRate != 250 {
		t.Errorf("Tick 3: expected smoothed rate 250, got %.1f", r.SampleRate)
	}
	if r.AverageDBm != -40 {
		t.Errorf("Tick 3: expected average to stay -40 dBm, got %.4f", r.AverageDBm)
	}
}

func TestAggregator_LossCorrection(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{
		FrequencyMHz: 1000,
		Loss:         pathloss.Result{LossDB: 42.5},
	}, 100)

	s.out <- repeatBatch(-42.5, 25)

	r, err := agg.Tick(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// The attenuation ahead of the detector is added back on
	if r.CorrectedDBm != 0 {
		t.Errorf("Expected corrected 0 dBm, got %.4f", r.CorrectedDBm)
	}
	if r.LossDB != 42.5 {
		t.Errorf("Expected loss 42.5 dB on the reading, got %.4f", r.LossDB)
	}
	if r.Unit != UnitMilliwatt || r.RangeIndex != 3 {
		t.Errorf("Expected mW band index 3, got %s/%d", r.Unit, r.RangeIndex)
	}
	if math.Abs(r.Watts-1.0) > 1e-12 {
		t.Errorf("Expected 1.0 mW at 0 dBm, got %.6f", r.Watts)
	}
}

func TestAggregator_PartialLossSurfaced(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{
		FrequencyMHz: 1000,
		Loss:         pathloss.Result{Partial: []string{"20dB coupler"}},
	}, 100)

	s.out <- repeatBatch(-30, 25)

	r, err := agg.Tick(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if len(r.Partial) != 1 || r.Partial[0] != "20dB coupler" {
		t.Errorf("Expected the incomplete device to be surfaced, got %v", r.Partial)
	}
}

func TestAggregator_OverloadFlag(t *testing.T) {
	testCases := []struct {
		name     string
		level    float64
		lossDB   float64
		lastCode uint16
		overload bool
	}{
		{"saturated detector", -10, 25, 3000, true},   // corrected 15 dBm
		{"dead bus reads zero", -10, 25, 0, false},    // code 0 means no real signal
		{"below the limit", -10, 21.5, 3000, false},   // corrected 11.5 dBm
		{"exactly at the limit", -13, 25, 3000, true}, // corrected 12 dBm
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, agg := newTestAggregator(t, AggregateConfig{
				FrequencyMHz: 1000,
				Loss:         pathloss.Result{LossDB: tc.lossDB},
			}, 100)

			s.lastCode.Store(uint32(tc.lastCode))
			s.out <- repeatBatch(tc.level, 25)

			r, err := agg.Tick(time.Unix(1000, 0))
			if err != nil {
				t.Fatalf("Tick failed: %v", err)
			}
			if r.Overload != tc.overload {
				t.Errorf("Expected overload=%v at corrected %.1f dBm with code %d, got %v",
					tc.overload, r.CorrectedDBm, tc.lastCode, r.Overload)
			}
		})
	}
}

func TestAggregator_RangeExceededStopsMeasurement(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{
		FrequencyMHz: 1000,
		Loss:         pathloss.Result{LossDB: 55},
	}, 100)

	s.out <- repeatBatch(10, 25)

	r, err := agg.Tick(time.Unix(1000, 0))
	if !errors.Is(err, ErrRangeExceeded) {
		t.Fatalf("Expected ErrRangeExceeded at corrected 65 dBm, got %v", err)
	}
	// The offending level is carried for the fault report
	if r.CorrectedDBm != 65 {
		t.Errorf("Expected corrected 65 dBm on the reading, got %.4f", r.CorrectedDBm)
	}
}

func TestAggregator_ManualRange(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{
		FrequencyMHz: 1000,
		RangeMode:    RangeManual,
		ManualRange:  5,
	}, 100)

	s.out <- repeatBatch(-30, 25)

	r, err := agg.Tick(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if r.RangeIndex != 5 || r.Unit != UnitKilowatt {
		t.Errorf("Expected the manual kW band to be echoed, got %s/%d", r.Unit, r.RangeIndex)
	}
}

func TestAggregator_WindowSnapshots(t *testing.T) {
	s, agg := newTestAggregator(t, AggregateConfig{FrequencyMHz: 1000, IncludeWindow: true}, 100)

	s.out <- repeatBatch(-30, 25)

	r, err := agg.Tick(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if len(r.Window) != 100 {
		t.Fatalf("Expected a full window snapshot of 100 samples, got %d", len(r.Window))
	}
	// Snapshot is oldest-first: prefill at the head, the batch at the tail
	if r.Window[0] != PrefillDBm {
		t.Errorf("Expected prefill %.1f at the head, got %.4f", PrefillDBm, r.Window[0])
	}
	if r.Window[99] != -30 {
		t.Errorf("Expected the batch value at the tail, got %.4f", r.Window[99])
	}

	s2, agg2 := newTestAggregator(t, AggregateConfig{FrequencyMHz: 1000}, 100)
	s2.out <- repeatBatch(-30, 25)
	r2, err := agg2.Tick(time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if r2.Window != nil {
		t.Errorf("Expected no window snapshot by default, got %d samples", len(r2.Window))
	}
}
