package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/storage"
)

// Recorder persists readings without blocking the measurement loop: Publish
// queues onto a buffered channel and a single goroutine folds the stream
// into batched inserts. The run row is created lazily, from the first
// reading that carries a new run ID.
type Recorder struct {
	store    storage.Store
	template storage.Run
	logger   *slog.Logger

	maxBatchSize  int
	flushInterval time.Duration

	readings chan meter.Reading
	dropped  atomic.Uint64

	closeOnce sync.Once
	wg        sync.WaitGroup

	lastRunID string // touched only by the drain goroutine
}

// NewRecorder starts the drain goroutine. The template carries the run
// parameters stored alongside each new run ID.
func NewRecorder(store storage.Store, template storage.Run, maxBatchSize int, flushInterval time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}

	rec := Recorder{
		store:         store,
		template:      template,
		logger:        logger,
		maxBatchSize:  maxBatchSize,
		flushInterval: flushInterval,
		readings:      make(chan meter.Reading, 4*maxBatchSize),
	}

	rec.wg.Add(1)
	go rec.run()

	return &rec
}

// Publish queues a reading for storage. When the recorder cannot keep up
// the reading is dropped rather than stalling the tick loop.
func (rec *Recorder) Publish(r meter.Reading) error {
	r.Window = nil // the trace is display-only, not stored

	select {
	case rec.readings <- r:
	default:
		rec.dropped.Add(1)
	}

	return nil
}

// Dropped returns the number of readings discarded because the recorder
// fell behind.
func (rec *Recorder) Dropped() uint64 {
	return rec.dropped.Load()
}

// Close flushes buffered readings and stops the recorder. The meter must
// have stopped publishing by the time Close is called.
func (rec *Recorder) Close() {
	rec.closeOnce.Do(func() {
		close(rec.readings)
		rec.wg.Wait()

		if n := rec.dropped.Load(); n > 0 {
			rec.logger.Warn("recorder dropped readings", slog.Uint64("count", n))
		}
	})
}

// run drains the channel into batches, flushing when a batch fills or the
// flush interval elapses. Flushes use the background context so the tail of
// a cancelled run is still persisted on shutdown.
func (rec *Recorder) run() {
	defer rec.wg.Done()

	ticker := time.NewTicker(rec.flushInterval)
	defer ticker.Stop()

	batch := make([]meter.Reading, 0, rec.maxBatchSize)

	for {
		select {
		case r, ok := <-rec.readings:
			if !ok {
				rec.flush(batch)
				return
			}

			rec.ensureRun(r)
			batch = append(batch, r)
			if len(batch) >= rec.maxBatchSize {
				rec.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			rec.flush(batch)
			batch = batch[:0]
		}
	}
}

// ensureRun records the start of a run the first time its ID is seen. On
// failure the row is retried with the next reading.
func (rec *Recorder) ensureRun(r meter.Reading) {
	if r.RunID == "" || r.RunID == rec.lastRunID {
		return
	}

	run := rec.template
	run.ID = r.RunID
	run.StartedAt = r.Time.UTC()

	if err := rec.store.CreateRun(context.Background(), run); err != nil {
		rec.logger.Error(fmt.Sprintf("failed to record run start: %s", err.Error()), slog.String("runId", r.RunID))
		return
	}

	rec.lastRunID = r.RunID
}

func (rec *Recorder) flush(batch []meter.Reading) {
	if len(batch) == 0 {
		return
	}

	if err := rec.store.StoreReadings(context.Background(), batch); err != nil {
		rec.logger.Error(fmt.Sprintf("failed to store readings: %s", err.Error()), slog.Int("count", len(batch)))
	}
}
