package storage

import (
	"time"
)

// Run is one recorded measurement run and the parameters it was started
// with.
type Run struct {
	ID           string
	StartedAt    time.Time
	FrequencyMHz float64
	BatchSize    int
	WindowSize   int
	AveragingMs  int
	Notes        string
}
