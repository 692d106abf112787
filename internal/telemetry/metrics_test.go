package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rfmetrics/powermeter/internal/meter"
)

func TestMetrics_PublishUpdatesCollectors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	readings := []meter.Reading{
		{AverageDBm: -42, PeakDBm: -40, CorrectedDBm: -12, LossDB: 30, SampleRate: 2400, RangeIndex: 2, Samples: 25},
		{AverageDBm: -41, PeakDBm: -39, CorrectedDBm: -11, LossDB: 30, SampleRate: 2500, RangeIndex: 2, Samples: 75, Overload: true},
	}
	for _, r := range readings {
		if err := m.Publish(r); err != nil {
			t.Fatalf("Failed to publish reading: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.readingsTotal); got != 2 {
		t.Errorf("Expected 2 readings, got %g", got)
	}
	if got := testutil.ToFloat64(m.samplesTotal); got != 75 {
		t.Errorf("Expected 75 samples, got %g", got)
	}
	if got := testutil.ToFloat64(m.correctedPwr); got != -11 {
		t.Errorf("Expected corrected power -11 dBm, got %g", got)
	}
	if got := testutil.ToFloat64(m.sampleRate); got != 2500 {
		t.Errorf("Expected sample rate 2500, got %g", got)
	}
	if got := testutil.ToFloat64(m.overload); got != 1 {
		t.Errorf("Expected overload flag set, got %g", got)
	}
}

func TestMetrics_SamplesSurviveRunRestart(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	// Counter keeps climbing even though the per-run sample count resets
	_ = m.Publish(meter.Reading{Samples: 100})
	_ = m.Publish(meter.Reading{Samples: 25})
	_ = m.Publish(meter.Reading{Samples: 50})

	if got := testutil.ToFloat64(m.samplesTotal); got != 125 {
		t.Errorf("Expected 125 samples across runs, got %g", got)
	}
}

func TestMetrics_ScrapeTimeStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.WatchStats(func() meter.Stats {
		return meter.Stats{Running: true, QueueLen: 3, DroppedBatches: 7}
	})

	expected := `
# HELP meter_queue_length Batches waiting in the acquisition queue
# TYPE meter_queue_length gauge
meter_queue_length 3
# HELP meter_running 1 while a measurement run is active
# TYPE meter_running gauge
meter_running 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"meter_queue_length", "meter_running"); err != nil {
		t.Errorf("Unexpected scrape output: %v", err)
	}
}

func TestMetrics_NoStatsSourceReadsZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	expected := `
# HELP meter_queue_length Batches waiting in the acquisition queue
# TYPE meter_queue_length gauge
meter_queue_length 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "meter_queue_length"); err != nil {
		t.Errorf("Unexpected scrape output: %v", err)
	}
}
