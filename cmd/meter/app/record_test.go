package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "powermeter.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Failed to initialise store: %s", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %s", err)
		}
	})

	return store
}

func TestRecorder_PersistsRunAndReadings(t *testing.T) {
	store := newTestStore(t)

	template := storage.Run{
		FrequencyMHz: 144.8,
		BatchSize:    25,
		WindowSize:   2500,
		AveragingMs:  500,
		Notes:        "bench",
	}

	// A huge flush interval keeps flushing driven by batch size and Close
	// only, so the test is deterministic.
	rec := NewRecorder(store, template, 2, time.Hour, nil)

	base := time.Date(2026, time.August, 25, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := rec.Publish(meter.Reading{
			Time:         base.Add(time.Duration(i) * time.Second),
			RunID:        "run-0001",
			FrequencyMHz: 144.8,
			AverageDBm:   -20.5,
			PeakDBm:      -18.2,
			CorrectedDBm: -20.5,
			Unit:         meter.UnitMicrowatt,
			RangeIndex:   2,
			Samples:      uint64(25 * (i + 1)),
			Window:       []float64{-20.5, -20.4},
		})
		if err != nil {
			t.Fatalf("Failed to publish reading: %s", err)
		}
	}

	rec.Close()

	if got := rec.Dropped(); got != 0 {
		t.Errorf("Expected no dropped readings, got %d", got)
	}

	ctx := context.Background()

	run, err := store.Run(ctx, "run-0001")
	if err != nil {
		t.Fatalf("Failed to load run: %s", err)
	}
	if run.FrequencyMHz != 144.8 {
		t.Errorf("Expected run frequency 144.8, got %g", run.FrequencyMHz)
	}
	if !run.StartedAt.Equal(base) {
		t.Errorf("Expected run started at %s, got %s", base, run.StartedAt)
	}
	if run.Notes != "bench" {
		t.Errorf("Expected run notes to carry over, got %q", run.Notes)
	}

	readings, err := store.ReadingsByRun(ctx, "run-0001", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to load readings: %s", err)
	}
	if len(readings) != 3 {
		t.Fatalf("Expected 3 readings, got %d", len(readings))
	}
	if !readings[2].Time.Equal(base.Add(2 * time.Second)) {
		t.Errorf("Expected last reading at %s, got %s", base.Add(2*time.Second), readings[2].Time)
	}
	if readings[2].Samples != 75 {
		t.Errorf("Expected 75 samples on the last reading, got %d", readings[2].Samples)
	}
	if readings[0].Window != nil {
		t.Error("Expected the stored reading to drop the window snapshot")
	}
}

func TestRecorder_NewRunIDCreatesNewRow(t *testing.T) {
	store := newTestStore(t)

	rec := NewRecorder(store, storage.Run{FrequencyMHz: 1000}, 10, time.Hour, nil)

	base := time.Date(2026, time.August, 25, 10, 0, 0, 0, time.UTC)
	for i, runID := range []string{"run-a", "run-a", "run-b"} {
		err := rec.Publish(meter.Reading{
			Time:  base.Add(time.Duration(i) * time.Second),
			RunID: runID,
		})
		if err != nil {
			t.Fatalf("Failed to publish reading: %s", err)
		}
	}

	rec.Close()

	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatalf("Failed to load runs: %s", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	latest, err := store.LatestRunID(context.Background())
	if err != nil {
		t.Fatalf("Failed to load latest run ID: %s", err)
	}
	if latest != "run-b" {
		t.Errorf("Expected latest run run-b, got %s", latest)
	}
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	rec := NewRecorder(newTestStore(t), storage.Run{FrequencyMHz: 1000}, 10, time.Hour, nil)

	rec.Close()
	rec.Close()
}
