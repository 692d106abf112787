package meter

import (
	"math"
	"testing"
)

func TestRollingWindow_Prefill(t *testing.T) {
	w, err := NewRollingWindow(100)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}

	for i, v := range w.Snapshot() {
		if v != PrefillDBm {
			t.Fatalf("Expected sample %d to be prefilled with %g, got %g", i, PrefillDBm, v)
		}
	}
}

func TestRollingWindow_FIFOOverwrite(t *testing.T) {
	// Five batches of 25 through a window of 100: the first batch is
	// evicted and the final 25 samples equal the last batch exactly.
	w, err := NewRollingWindow(100)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}

	batches := make([][]float64, 5)
	for b := range batches {
		batch := make([]float64, 25)
		for i := range batch {
			batch[i] = float64(b*100 + i)
		}
		batches[b] = batch
		w.Push(batch)
	}

	snap := w.Snapshot()

	// Window now holds batches 1..4 oldest to newest.
	for b := 1; b < 5; b++ {
		offset := (b - 1) * 25
		for i := 0; i < 25; i++ {
			want := float64(b*100 + i)
			if snap[offset+i] != want {
				t.Fatalf("Sample %d: expected %g, got %g", offset+i, want, snap[offset+i])
			}
		}
	}

	tail := snap[75:]
	for i, v := range tail {
		if v != batches[4][i] {
			t.Errorf("Tail sample %d: expected %g, got %g", i, batches[4][i], v)
		}
	}
}

func TestRollingWindow_MeanRecent(t *testing.T) {
	w, err := NewRollingWindow(100)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}

	batch := make([]float64, 25)
	var sum float64
	for i := range batch {
		batch[i] = -40 + float64(i)*0.5
		sum += batch[i]
	}
	w.Push(batch)

	want := sum / 25
	if got := w.MeanRecent(25); math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected mean %g over newest 25, got %g", want, got)
	}

	// Clamping: zero and oversized counts stay within the window.
	if got := w.MeanRecent(0); got != batch[len(batch)-1] {
		t.Errorf("Expected mean of newest sample %g, got %g", batch[len(batch)-1], got)
	}

	wantAll := (sum + 75*PrefillDBm) / 100
	if got := w.MeanRecent(1000); math.Abs(got-wantAll) > 1e-12 {
		t.Errorf("Expected whole-window mean %g, got %g", wantAll, got)
	}
}

func TestRollingWindow_Max(t *testing.T) {
	w, err := NewRollingWindow(10)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}

	w.Push([]float64{-50, -20.5, -61})
	if got := w.Max(); got != -20.5 {
		t.Errorf("Expected max -20.5, got %g", got)
	}
}

func TestRollingWindow_OversizedBatch(t *testing.T) {
	w, err := NewRollingWindow(4)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}

	w.Push([]float64{1, 2, 3, 4, 5, 6})

	want := []float64{3, 4, 5, 6}
	for i, v := range w.Snapshot() {
		if v != want[i] {
			t.Errorf("Sample %d: expected %g, got %g", i, want[i], v)
		}
	}
}

func TestNewRollingWindow_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -5} {
		if _, err := NewRollingWindow(capacity); err == nil {
			t.Errorf("Expected error for capacity %d", capacity)
		}
	}
}
