package meter

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rfmetrics/powermeter/internal/pathloss"
)

const (
	// DefaultAveragingMillis is the averaging interval applied when the
	// configuration does not set one.
	DefaultAveragingMillis = 500

	// rateHistoryDepth is the number of per-tick rate samples kept for
	// smoothing. Tick timing under a loaded scheduler is uneven; the moving
	// average damps it.
	rateHistoryDepth = 50
)

// AggregateConfig carries the measurement parameters captured at run start.
// They are read-only for the duration of a run; changing them requires a
// stop/restart cycle.
type AggregateConfig struct {
	FrequencyMHz float64
	Loss         pathloss.Result
	AveragingMs  int
	PowerMode    PowerMode
	RangeMode    RangeMode
	ManualRange  int

	// IncludeWindow attaches a window snapshot to every Reading, for sinks
	// that plot the live trace.
	IncludeWindow bool
}

// Aggregator turns queued sample batches into per-tick Readings. It is the
// queue's single consumer and must be driven from one goroutine; Tick never
// blocks on the queue.
type Aggregator struct {
	src    *Sampler
	window *RollingWindow
	cfg    AggregateConfig

	rates   []float64
	rateIdx int

	lastTick time.Time
	last     Reading
}

// NewAggregator builds an Aggregator draining src into window. The first
// Reading is primed from the window contents so empty early ticks report
// the prefill level instead of zeros.
func NewAggregator(src *Sampler, window *RollingWindow, cfg AggregateConfig) *Aggregator {
	if cfg.AveragingMs <= 0 {
		cfg.AveragingMs = DefaultAveragingMillis
	}
	if cfg.PowerMode == "" {
		cfg.PowerMode = PowerAverage
	}
	if cfg.RangeMode == "" {
		cfg.RangeMode = RangeAuto
	}

	a := &Aggregator{
		src:    src,
		window: window,
		cfg:    cfg,
		rates:  make([]float64, 0, rateHistoryDepth),
	}
	a.last, _ = a.compute(time.Time{}, 0)

	return a
}

// Tick drains the batch queue, folds the batches into the window and
// recomputes the measurement. When nothing arrived since the previous tick
// the last Reading is repeated with a fresh timestamp and rate; values are
// never fabricated from an empty queue. A RangeExceeded error means the
// corrected power left every band and the run must stop.
func (a *Aggregator) Tick(now time.Time) (Reading, error) {
	drained := 0
drain:
	for {
		select {
		case batch := <-a.src.Batches():
			a.window.Push(batch)
			drained++
		default:
			break drain
		}
	}

	if !a.lastTick.IsZero() {
		if elapsed := now.Sub(a.lastTick).Seconds(); elapsed > 0 {
			a.pushRate(float64(drained*a.src.batchSize) / elapsed)
		}
	}
	a.lastTick = now

	rate := a.smoothedRate()

	if drained == 0 {
		r := a.last
		r.Time = now
		r.SampleRate = rate
		r.Samples = a.src.Samples()
		a.last = r
		return r, nil
	}

	r, err := a.compute(now, rate)
	if err != nil {
		return r, err
	}

	a.last = r
	return r, nil
}

// Last returns the most recent Reading without touching the queue.
func (a *Aggregator) Last() Reading {
	return a.last
}

// compute derives a Reading from the current window state. On RangeExceeded
// the partially filled Reading is returned alongside the error so the fault
// report can carry the offending level.
func (a *Aggregator) compute(now time.Time, rate float64) (Reading, error) {
	avg := a.window.MeanRecent(a.averagingCount(rate))
	peak := a.window.Max()

	displayed := avg
	if a.cfg.PowerMode == PowerPeak {
		displayed = peak
	}

	// Corrected power restores what the couplers and attenuators removed
	// ahead of the detector: reading plus the positive loss magnitude.
	corrected := displayed + a.cfg.Loss.LossDB

	r := Reading{
		Time:         now,
		FrequencyMHz: a.cfg.FrequencyMHz,
		AverageDBm:   avg,
		PeakDBm:      peak,
		CorrectedDBm: corrected,
		LossDB:       a.cfg.Loss.LossDB,
		SampleRate:   rate,
		Samples:      a.src.Samples(),
		Overload:     corrected >= OverloadDBm && a.src.LastCode() != 0,
		Partial:      a.cfg.Loss.Partial,
	}
	if a.cfg.IncludeWindow {
		r.Window = a.window.Snapshot()
	}

	rng, err := RangeFor(corrected, a.cfg.RangeMode, a.cfg.ManualRange)
	if err != nil {
		return r, err
	}

	r.RangeIndex = rng.Index
	r.Unit = rng.Unit
	r.Watts = rng.Watts
	r.Scale = rng.Scale

	return r, nil
}

// averagingCount converts the user's averaging interval into a sample
// count at the current rate, clamped to one batch at least and the window
// capacity at most.
func (a *Aggregator) averagingCount(rate float64) int {
	n := int(math.Round(rate * float64(a.cfg.AveragingMs) / 1000))
	if n < a.src.batchSize {
		n = a.src.batchSize
	}
	if n > a.window.Capacity() {
		n = a.window.Capacity()
	}
	return n
}

func (a *Aggregator) pushRate(rate float64) {
	if len(a.rates) < rateHistoryDepth {
		a.rates = append(a.rates, rate)
		return
	}
	a.rates[a.rateIdx] = rate
	a.rateIdx = (a.rateIdx + 1) % rateHistoryDepth
}

func (a *Aggregator) smoothedRate() float64 {
	if len(a.rates) == 0 {
		return 0
	}
	return stat.Mean(a.rates, nil)
}
