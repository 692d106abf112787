// Package display delivers finished readings to their consumers: the
// process log, an MQTT broker and live websocket panels. Every sink
// implements meter.Sink and is fanned out to from the measurement loop,
// one reading at a time.
package display

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rfmetrics/powermeter/internal/meter"
)

// LogSink writes readings to the process log. A nil logger falls back to
// slog.Default.
type LogSink struct {
	logger *slog.Logger
	every  time.Duration

	lastLog     time.Time
	wasOverload bool
}

// NewLogSink creates a log sink that emits at most one reading per every.
// Zero logs every reading it is handed.
func NewLogSink(logger *slog.Logger, every time.Duration) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, every: every}
}

func (s *LogSink) Publish(r meter.Reading) error {
	if r.Overload && !s.wasOverload {
		s.logger.Warn("sensor overload",
			slog.Float64("correctedDBm", r.CorrectedDBm),
			slog.Float64("frequencyMHz", r.FrequencyMHz))
	}
	s.wasOverload = r.Overload

	if s.every > 0 && r.Time.Sub(s.lastLog) < s.every {
		return nil
	}
	s.lastLog = r.Time

	// Corrected level as absolute watts, scaled to a readable SI prefix
	watts := math.Pow(10, (r.CorrectedDBm-30)/10)

	s.logger.Info("reading",
		slog.Float64("frequencyMHz", r.FrequencyMHz),
		slog.String("power", humanize.SIWithDigits(watts, 2, "W")),
		slog.String("meter", fmt.Sprintf("%.2f %s", r.Watts, r.Unit)),
		slog.Int("range", r.RangeIndex),
		slog.Float64("correctedDBm", r.CorrectedDBm),
		slog.Float64("averageDBm", r.AverageDBm),
		slog.Float64("peakDBm", r.PeakDBm),
		slog.Float64("sampleRate", r.SampleRate))

	return nil
}
