package meter

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rfmetrics/powermeter/internal/adc"
	"github.com/rfmetrics/powermeter/internal/calibration"
)

const (
	// DefaultBatchSize is the number of conversions acquired per batch. The
	// stop flag is only checked between batches, so this bounds how many
	// samples a stop request may still let through.
	DefaultBatchSize = 25

	// DefaultQueueDepth is the capacity of the batch queue between the
	// sampler and the aggregator.
	DefaultQueueDepth = 64
)

// Sampler drives the converter in a tight loop, turning conversion codes
// into dBm batches and queueing them for aggregation. The queue never
// blocks the acquisition loop: when the consumer falls behind, the newest
// batch is dropped and counted.
//
// The batch channel is never closed; the end of a run is signalled on the
// channel returned by Start.
type Sampler struct {
	bus       adc.Bus
	transform calibration.Transform
	batchSize int

	out chan []float64

	isRunning atomic.Bool
	stop      atomic.Bool
	wg        sync.WaitGroup

	samples  atomic.Uint64
	dropped  atomic.Uint64
	lastCode atomic.Uint32

	logger *slog.Logger
}

// NewSampler creates a Sampler reading from bus and converting codes with
// transform. A nil logger discards log output.
func NewSampler(bus adc.Bus, transform calibration.Transform, batchSize, queueDepth int, logger *slog.Logger) *Sampler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}

	return &Sampler{
		bus:       bus,
		transform: transform,
		batchSize: batchSize,
		out:       make(chan []float64, queueDepth),
		logger:    logger,
	}
}

// Start launches the acquisition loop and returns a channel that is closed
// when the loop exits; if the loop aborted on a fault, the fault is sent on
// the channel first. Start fails with ErrAlreadyRunning while a previous
// run is still active.
func (s *Sampler) Start() (<-chan error, error) {
	if s.isRunning.Load() {
		return nil, ErrAlreadyRunning
	}

	s.isRunning.Store(true)
	s.stop.Store(false)

	stopped := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		// Close before Done so that a returned Stop implies the channel is
		// settled and a pending fault is collectable.
		defer s.wg.Done()
		defer close(stopped)

		s.logger.Info("starting acquisition...")

		if err := s.run(); err != nil {
			s.logger.Error(err.Error())
			stopped <- err
		}

		s.isRunning.Store(false)
		s.logger.Info("acquisition stopped")
	}()

	return stopped, nil
}

// Stop requests the acquisition loop to exit and waits for it. The flag is
// only honoured at batch boundaries, so the batch in flight completes.
func (s *Sampler) Stop() {
	if !s.isRunning.Load() {
		return // already stopped
	}

	s.stop.Store(true)
	s.wg.Wait()
	s.isRunning.Store(false)
}

// IsRunning returns true while the acquisition loop is active.
func (s *Sampler) IsRunning() bool {
	return s.isRunning.Load()
}

// Batches returns the queue of converted sample batches.
func (s *Sampler) Batches() <-chan []float64 {
	return s.out
}

// QueueLen returns the approximate number of queued batches. The value is
// advisory under concurrent producer writes.
func (s *Sampler) QueueLen() int {
	return len(s.out)
}

// Samples returns the number of conversions acquired since the sampler was
// created.
func (s *Sampler) Samples() uint64 {
	return s.samples.Load()
}

// Dropped returns the number of batches discarded because the queue was
// full.
func (s *Sampler) Dropped() uint64 {
	return s.dropped.Load()
}

// LastCode returns the most recent conversion code.
func (s *Sampler) LastCode() uint16 {
	return uint16(s.lastCode.Load())
}

func (s *Sampler) run() error {
	frame := adc.Frame()

	for !s.stop.Load() {
		batch := make([]float64, 0, s.batchSize)

		for i := 0; i < s.batchSize; i++ {
			reply, err := s.bus.Transfer(frame[:])
			if err != nil {
				return fmt.Errorf("bus transfer: %w", err)
			}
			if len(reply) < 2 {
				return fmt.Errorf("bus transfer: short reply, %d bytes", len(reply))
			}

			raw := adc.DecodeFrame(reply[0], reply[1])
			if !raw.Valid {
				return &TransferFaultError{Status: raw.Status, Code: raw.Code}
			}

			s.lastCode.Store(uint32(raw.Code))
			batch = append(batch, s.transform.Power(raw.Code))
		}

		s.samples.Add(uint64(s.batchSize))

		select {
		case s.out <- batch:
		default:
			s.dropped.Add(1) // queue full, batch discarded
		}
	}

	return nil
}
