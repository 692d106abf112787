package telemetry

import (
	"os"
	"testing"
)

func TestStatusReporter_Snapshot(t *testing.T) {
	sr := NewStatusReporter()
	s := sr.Snapshot()

	if s.PID != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), s.PID)
	}
	if s.Goroutines <= 0 {
		t.Errorf("Expected a positive goroutine count, got %d", s.Goroutines)
	}
	if s.Time.IsZero() {
		t.Error("Expected the snapshot to be timestamped")
	}
	if s.UptimeSec < 0 {
		t.Errorf("Expected non-negative uptime, got %d", s.UptimeSec)
	}
}
