// Package telemetry exposes the running meter's operational state:
// Prometheus collectors fed from the measurement loop, and a host status
// snapshot for the HTTP API.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rfmetrics/powermeter/internal/meter"
)

// Metrics holds the Prometheus collectors for measurement data. It
// implements meter.Sink, so readings flow in from the measurement loop;
// queue and counter figures are pulled from the meter at scrape time.
type Metrics struct {
	readingsTotal prometheus.Counter
	samplesTotal  prometheus.Counter

	averagePower  prometheus.Gauge
	peakPower     prometheus.Gauge
	correctedPwr  prometheus.Gauge
	pathLoss      prometheus.Gauge
	sampleRate    prometheus.Gauge
	rangeIndex    prometheus.Gauge
	overload      prometheus.Gauge
	frequencyMHz  prometheus.Gauge

	// Samples is cumulative per run; lastSamples tracks the previous value
	// so the counter advances by deltas. Publish runs on the measurement
	// loop only, so no lock is needed.
	lastSamples uint64

	statsMu sync.RWMutex
	stats   func() meter.Stats
}

// NewMetrics creates and registers the meter collectors. A nil registerer
// uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		readingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meter_readings_total",
			Help: "Total readings published by the measurement loop",
		}),
		samplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meter_samples_total",
			Help: "Total ADC samples acquired",
		}),
		averagePower: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_average_power_dbm",
			Help: "Average sensor power in dBm over the averaging window",
		}),
		peakPower: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_peak_power_dbm",
			Help: "Peak sensor power in dBm over the full window",
		}),
		correctedPwr: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_corrected_power_dbm",
			Help: "Displayed power in dBm with path loss restored",
		}),
		pathLoss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_path_loss_db",
			Help: "Total in-use attenuator and coupler loss in dB",
		}),
		sampleRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_sample_rate",
			Help: "Smoothed acquisition rate in samples per second",
		}),
		rangeIndex: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_range_index",
			Help: "Active display range band index",
		}),
		overload: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_overload",
			Help: "1 while the corrected level is at or above the sensor maximum",
		}),
		frequencyMHz: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meter_frequency_mhz",
			Help: "Measurement frequency in MHz",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "meter_queue_length",
		Help: "Batches waiting in the acquisition queue",
	}, func() float64 {
		return float64(m.currentStats().QueueLen)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "meter_running",
		Help: "1 while a measurement run is active",
	}, func() float64 {
		if m.currentStats().Running {
			return 1
		}
		return 0
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "meter_dropped_batches_total",
		Help: "Batches discarded because the queue was full",
	}, func() float64 {
		return float64(m.currentStats().DroppedBatches)
	})

	return m
}

// WatchStats wires the scrape-time collectors to a stats source, normally
// the meter's Stats method.
func (m *Metrics) WatchStats(fn func() meter.Stats) {
	m.statsMu.Lock()
	m.stats = fn
	m.statsMu.Unlock()
}

func (m *Metrics) currentStats() meter.Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()

	if m.stats == nil {
		return meter.Stats{}
	}
	return m.stats()
}

func (m *Metrics) Publish(r meter.Reading) error {
	m.readingsTotal.Inc()

	if r.Samples >= m.lastSamples {
		m.samplesTotal.Add(float64(r.Samples - m.lastSamples))
	}
	m.lastSamples = r.Samples

	m.averagePower.Set(r.AverageDBm)
	m.peakPower.Set(r.PeakDBm)
	m.correctedPwr.Set(r.CorrectedDBm)
	m.pathLoss.Set(r.LossDB)
	m.sampleRate.Set(r.SampleRate)
	m.rangeIndex.Set(float64(r.RangeIndex))
	m.frequencyMHz.Set(r.FrequencyMHz)

	if r.Overload {
		m.overload.Set(1)
	} else {
		m.overload.Set(0)
	}

	return nil
}
