package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rfmetrics/powermeter/internal/adc"
	"github.com/rfmetrics/powermeter/internal/display"
	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/storage"
	"github.com/rfmetrics/powermeter/internal/telemetry"
)

// Run wires the meter from configuration and drives one measurement run
// until the context is cancelled or acquisition faults. Everything opened
// here is released in reverse order after the run has fully stopped; the
// bus handle in particular outlives the sampler, which the meter
// guarantees has terminated before Run returns.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(config)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(fmt.Sprintf("failed to close storage: %s", err.Error()))
		}
	}()

	points, err := store.Calibrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load calibrations: %w", err)
	}
	if len(points) == 0 {
		return errors.New("no calibration data in the database, create a point with calset first")
	}

	devices, err := store.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to load loss devices: %w", err)
	}

	bus, err := adc.Open(config.Bus)
	if err != nil {
		return fmt.Errorf("failed to open converter: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error(fmt.Sprintf("failed to close bus: %s", err.Error()))
		}
	}()

	recorder := NewRecorder(store, storage.Run{
		FrequencyMHz: config.Measure.FrequencyMHz,
		BatchSize:    config.Measure.BatchSize,
		WindowSize:   config.Measure.WindowSize,
		AveragingMs:  config.Measure.AveragingMs,
		Notes:        config.Measure.Notes,
	}, config.Storage.MaxBatchSize, config.Storage.FlushInterval.Duration(), logger)
	defer recorder.Close()

	metrics := telemetry.NewMetrics(nil)

	sinks := []meter.Sink{
		display.NewLogSink(logger, config.Log.ReadingEvery.Duration()),
		recorder,
		metrics,
	}

	var live *display.LiveSink
	if config.HTTP.Enabled {
		live = display.NewLiveSink(logger)
		defer live.Close()
		sinks = append(sinks, live)
	}

	if config.MQTT.Enabled {
		mqttSink, err := display.NewMQTTSink(display.MQTTConfig{
			Broker:      config.MQTT.Broker,
			ClientID:    config.MQTT.ClientID,
			Username:    config.MQTT.Username,
			Password:    config.MQTT.Password,
			TopicPrefix: config.MQTT.TopicPrefix,
			QoS:         byte(config.MQTT.QoS),
			Retain:      config.MQTT.Retain,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer mqttSink.Close()
		sinks = append(sinks, mqttSink)
	}

	options := []func(m *meter.Meter){
		meter.WithLogger(logger),
		meter.WithBatchSize(config.Measure.BatchSize),
		meter.WithQueueDepth(config.Measure.QueueDepth),
		meter.WithWindowSize(config.Measure.WindowSize),
		meter.WithTickInterval(config.Measure.TickInterval.Duration()),
		meter.WithAveragingMillis(config.Measure.AveragingMs),
		meter.WithPowerMode(meter.PowerMode(config.Measure.PowerMode)),
		meter.WithRangeMode(meter.RangeMode(config.Measure.RangeMode)),
		meter.WithManualRangeIndex(config.Measure.ManualRange),
		meter.WithSinks(sinks...),
	}
	if config.HTTP.Enabled {
		// Live panels plot the raw trace; nothing else consumes it.
		options = append(options, meter.WithWindowSnapshots())
	}

	m := meter.New(bus, config.Measure.FrequencyMHz, points, devices, options...)
	metrics.WatchStats(m.Stats)

	reporter := telemetry.NewStatusReporter()
	go logStatus(ctx, reporter, config.Log.StatusEvery.Duration(), logger)

	if config.HTTP.Enabled {
		srv := newServer(config.HTTP, m, live, reporter, logger)
		defer shutdownServer(srv, logger)

		go func() {
			logger.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(fmt.Sprintf("http server failed: %s", err.Error()))
			}
		}()
	}

	return m.Run(ctx)
}

// createStorage opens the database and applies the schema.
func createStorage(config *Config) (storage.Store, error) {
	store := storage.NewSqliteStore(config.Storage.DBPath)
	if err := store.Init(); err != nil {
		return nil, err
	}

	return store, nil
}

// shutdownServer gives in-flight requests a moment to finish.
func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("failed to shut down http server: %s", err.Error()))
	}
}

// logStatus periodically logs a host status snapshot.
func logStatus(ctx context.Context, reporter *telemetry.StatusReporter, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s := reporter.Snapshot()
			logger.Debug("host status",
				slog.Float64("cpuPercent", s.CPUPercent),
				slog.Float64("load1", s.Load1),
				slog.Float64("memUsedPercent", s.MemUsedPct),
				slog.Uint64("memTotalMB", s.MemTotalMB),
				slog.Int("goroutines", s.Goroutines),
				slog.Int64("uptimeSec", s.UptimeSec),
			)
		}
	}
}
