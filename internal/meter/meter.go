// Package meter implements the measurement core: a Sampler feeding
// calibrated batches through a bounded queue into an Aggregator that folds
// them into a rolling window and derives per-tick Readings, with the Meter
// owning the run lifecycle around both.
package meter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rfmetrics/powermeter/internal/adc"
	"github.com/rfmetrics/powermeter/internal/calibration"
	"github.com/rfmetrics/powermeter/internal/pathloss"
)

const (
	// DefaultWindowSize is the rolling window capacity in samples.
	DefaultWindowSize = 2500

	// DefaultTickInterval is the aggregation cadence.
	DefaultTickInterval = 100 * time.Millisecond
)

// Sink receives every Reading the meter produces. Publish errors are
// logged and never stop the run; implementations must not block the tick
// loop.
type Sink interface {
	Publish(r Reading) error
}

// WithLogger sets the logger for the meter.
func WithLogger(logger *slog.Logger) func(m *Meter) {
	return func(m *Meter) {
		m.logger = logger
	}
}

// WithBatchSize sets the number of conversions per batch.
func WithBatchSize(n int) func(m *Meter) {
	return func(m *Meter) {
		m.batchSize = n
	}
}

// WithQueueDepth sets the capacity of the batch hand-off queue.
func WithQueueDepth(n int) func(m *Meter) {
	return func(m *Meter) {
		m.queueDepth = n
	}
}

// WithWindowSize sets the rolling window capacity in samples.
func WithWindowSize(n int) func(m *Meter) {
	return func(m *Meter) {
		m.windowSize = n
	}
}

// WithTickInterval sets the aggregation cadence.
func WithTickInterval(d time.Duration) func(m *Meter) {
	return func(m *Meter) {
		m.tick = d
	}
}

// WithAveragingMillis sets the averaging interval the aggregator converts
// into a sample count at the measured rate.
func WithAveragingMillis(ms int) func(m *Meter) {
	return func(m *Meter) {
		m.averagingMs = ms
	}
}

// WithPowerMode selects average or peak readout.
func WithPowerMode(mode PowerMode) func(m *Meter) {
	return func(m *Meter) {
		m.powerMode = mode
	}
}

// WithRangeMode selects automatic or manual range selection.
func WithRangeMode(mode RangeMode) func(m *Meter) {
	return func(m *Meter) {
		m.rangeMode = mode
	}
}

// WithManualRangeIndex sets the band used in manual range mode.
func WithManualRangeIndex(index int) func(m *Meter) {
	return func(m *Meter) {
		m.manualRange = index
	}
}

// WithWindowSnapshots attaches the full window to every Reading, for sinks
// that plot the live trace.
func WithWindowSnapshots() func(m *Meter) {
	return func(m *Meter) {
		m.includeWindow = true
	}
}

// WithSinks registers the consumers of per-tick Readings.
func WithSinks(sinks ...Sink) func(m *Meter) {
	return func(m *Meter) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// Stats is a point-in-time snapshot of the measurement state.
type Stats struct {
	Running        bool      `json:"running"`
	RunID          string    `json:"runId,omitempty"`
	StartedAt      time.Time `json:"startedAt,omitempty"`
	Samples        uint64    `json:"samples"`
	DroppedBatches uint64    `json:"droppedBatches"`
	QueueLen       int       `json:"queueLen"` // advisory
	SampleRate     float64   `json:"sampleRate"`
}

// Meter owns one measurement run at a time: it captures calibration and
// loss at start, runs the Sampler, drives the Aggregator on a fixed tick
// and fans Readings out to the sinks. Faults from either side stop the run
// and are returned from Run.
type Meter struct {
	bus          adc.Bus
	frequencyMHz float64
	points       []calibration.Point
	devices      []pathloss.Device

	batchSize     int
	queueDepth    int
	windowSize    int
	tick          time.Duration
	averagingMs   int
	powerMode     PowerMode
	rangeMode     RangeMode
	manualRange   int
	includeWindow bool

	sinks  []Sink
	logger *slog.Logger

	running atomic.Bool

	mu        sync.Mutex
	runID     string
	startedAt time.Time
	sampler   *Sampler
	last      Reading
}

// New creates a Meter measuring at frequencyMHz with the given calibration
// set and loss devices. Calibration and loss are evaluated when a run
// starts, not here, so the collections may be edited between runs.
func New(bus adc.Bus, frequencyMHz float64, points []calibration.Point, devices []pathloss.Device, options ...func(m *Meter)) *Meter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	m := Meter{
		bus:          bus,
		frequencyMHz: frequencyMHz,
		points:       points,
		devices:      devices,
		batchSize:    DefaultBatchSize,
		queueDepth:   DefaultQueueDepth,
		windowSize:   DefaultWindowSize,
		tick:         DefaultTickInterval,
		averagingMs:  DefaultAveragingMillis,
		powerMode:    PowerAverage,
		rangeMode:    RangeAuto,
		logger:       logger,
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Run performs one measurement run: it selects the nearest calibration
// point, sums the path loss, starts acquisition and ticks until the context
// is cancelled or a fault stops the run. The bus handle is not released
// here; it stays valid for the caller once the sampler has fully
// terminated, which Run guarantees before returning.
func (m *Meter) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	if m.frequencyMHz <= 0 {
		return fmt.Errorf("meter: target frequency must be positive, got %g MHz", m.frequencyMHz)
	}

	point, err := calibration.SelectNearest(m.points, m.frequencyMHz)
	if err != nil {
		return fmt.Errorf("meter: selecting calibration: %w", err)
	}

	loss, err := pathloss.TotalLoss(m.frequencyMHz, m.devices)
	if err != nil {
		return fmt.Errorf("meter: summing path loss: %w", err)
	}

	window, err := NewRollingWindow(m.windowSize)
	if err != nil {
		return fmt.Errorf("meter: %w", err)
	}

	sampler := NewSampler(m.bus, point.Transform(), m.batchSize, m.queueDepth, m.logger)
	agg := NewAggregator(sampler, window, AggregateConfig{
		FrequencyMHz:  m.frequencyMHz,
		Loss:          loss,
		AveragingMs:   m.averagingMs,
		PowerMode:     m.powerMode,
		RangeMode:     m.rangeMode,
		ManualRange:   m.manualRange,
		IncludeWindow: m.includeWindow,
	})

	runID := uuid.NewString()

	m.mu.Lock()
	m.runID = runID
	m.startedAt = time.Now()
	m.sampler = sampler
	m.last = agg.Last()
	m.mu.Unlock()

	logger := m.logger.With(slog.String("runId", runID))

	stopped, err := sampler.Start()
	if err != nil {
		return err
	}

	logger.Info("measurement started",
		slog.Float64("frequencyMHz", m.frequencyMHz),
		slog.Float64("calibrationMHz", point.FrequencyMHz),
		slog.Float64("lossDB", loss.LossDB),
	)
	if loss.IsPartial() {
		logger.Warn(fmt.Sprintf("loss tables incomplete, accuracy reduced: %v", loss.Partial))
	}

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case err := <-stopped:
			// The sampler only exits on its own when a transfer faulted.
			if err != nil {
				runErr = fmt.Errorf("meter: acquisition aborted: %w", err)
			}
			break loop

		case now := <-ticker.C:
			r, err := agg.Tick(now)
			if err != nil {
				runErr = fmt.Errorf("meter: %w (corrected %.1f dBm)", err, r.CorrectedDBm)
				break loop
			}

			r.RunID = runID
			m.mu.Lock()
			m.last = r
			m.mu.Unlock()

			m.publish(r)
		}
	}

	// Stop at the next batch boundary and wait for the loop to terminate,
	// then collect a fault that raced with cancellation.
	sampler.Stop()
	for err := range stopped {
		if err != nil && runErr == nil {
			runErr = fmt.Errorf("meter: acquisition aborted: %w", err)
		}
	}

	// Fold whatever is still queued into the window so the final state
	// reflects every acquired sample.
	if _, err := agg.Tick(time.Now()); err != nil && runErr == nil {
		runErr = fmt.Errorf("meter: %w", err)
	}

	if runErr != nil {
		logger.Error(runErr.Error())
	}
	logger.Info("measurement stopped",
		slog.Uint64("samples", sampler.Samples()),
		slog.Uint64("droppedBatches", sampler.Dropped()),
	)

	return runErr
}

// IsRunning returns true while a run is active.
func (m *Meter) IsRunning() bool {
	return m.running.Load()
}

// LastReading returns the most recent Reading, or the zero value before the
// first run has produced one.
func (m *Meter) LastReading() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Stats returns a snapshot of the measurement state. Counters survive the
// end of a run until the next one starts.
func (m *Meter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		Running:    m.running.Load(),
		RunID:      m.runID,
		StartedAt:  m.startedAt,
		SampleRate: m.last.SampleRate,
	}
	if m.sampler != nil {
		st.Samples = m.sampler.Samples()
		st.DroppedBatches = m.sampler.Dropped()
		st.QueueLen = m.sampler.QueueLen()
	}

	return st
}

func (m *Meter) publish(r Reading) {
	for _, sink := range m.sinks {
		if err := sink.Publish(r); err != nil {
			m.logger.Warn(fmt.Sprintf("sink error: %s", err.Error()))
		}
	}
}
