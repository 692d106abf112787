package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/rfmetrics/powermeter/internal/calibration"
	"github.com/rfmetrics/powermeter/internal/storage"
)

type options struct {
	dbPath   string
	freq     float64
	calHigh  float64
	calLow   float64
	highCode float64
	lowCode  float64
	quality  string
	update   int64
	list     bool
}

func main() {
	var opts options

	pflag.StringVarP(&opts.dbPath, "db", "d", "powermeter.db", "Path to the meter database")
	pflag.Float64VarP(&opts.freq, "freq", "f", 0, "Calibration frequency in MHz")
	pflag.Float64Var(&opts.calHigh, "cal-high", -10, "High reference level in dBm")
	pflag.Float64Var(&opts.calLow, "cal-low", -50, "Low reference level in dBm")
	pflag.Float64Var(&opts.highCode, "high-code", 0, "ADC code observed at the high reference")
	pflag.Float64Var(&opts.lowCode, "low-code", 0, "ADC code observed at the low reference")
	pflag.StringVarP(&opts.quality, "quality", "q", "", "Free-form note stored with the point")
	pflag.Int64Var(&opts.update, "update", 0, "Rewrite the transform of an existing point by ID instead of inserting")
	pflag.BoolVarP(&opts.list, "list", "l", false, "List stored calibration points and exit")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(opts, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	store := storage.NewSqliteStore(opts.dbPath)
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if opts.list {
		return listPoints(ctx, store)
	}

	transform, err := calibration.Derive(opts.highCode, opts.lowCode, opts.calHigh, opts.calLow)

	var invalid *calibration.InvalidCalibrationError
	if errors.As(err, &invalid) {
		if transform.Slope != 0 || transform.Intercept != 0 {
			logger.Warn("derived transform rejected",
				slog.Float64("slope", transform.Slope),
				slog.Float64("intercept", transform.Intercept),
			)
		}
		return fmt.Errorf("refusing to store calibration: %s", invalid.Reason)
	}
	if err != nil {
		return err
	}

	if opts.update != 0 {
		if err := store.UpdateCalibrationTransform(ctx, opts.update, transform); err != nil {
			return fmt.Errorf("failed to update calibration: %w", err)
		}

		logger.Info("calibration transform updated",
			slog.Int64("id", opts.update),
			slog.Float64("slope", transform.Slope),
			slog.Float64("intercept", transform.Intercept),
		)
		return nil
	}

	if opts.freq <= 0 {
		return fmt.Errorf("calibration frequency must be positive: %g MHz", opts.freq)
	}

	id, err := store.InsertCalibration(ctx, calibration.Point{
		FrequencyMHz: opts.freq,
		Slope:        transform.Slope,
		Intercept:    transform.Intercept,
		CalHigh:      opts.calHigh,
		CalLow:       opts.calLow,
		HighCode:     opts.highCode,
		LowCode:      opts.lowCode,
		Quality:      opts.quality,
	})
	if err != nil {
		return fmt.Errorf("failed to store calibration: %w", err)
	}

	logger.Info("calibration stored",
		slog.Int64("id", id),
		slog.Float64("frequencyMHz", opts.freq),
		slog.Float64("slope", transform.Slope),
		slog.Float64("intercept", transform.Intercept),
	)

	return nil
}

func listPoints(ctx context.Context, store storage.Store) error {
	points, err := store.Calibrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load calibrations: %w", err)
	}

	if len(points) == 0 {
		fmt.Println("no calibration points stored")
		return nil
	}

	fmt.Printf("%4s  %12s  %9s  %10s  %16s  %16s  %s\n",
		"ID", "FREQ MHz", "SLOPE", "INTERCEPT", "HIGH (dBm/code)", "LOW (dBm/code)", "QUALITY")
	for _, p := range points {
		fmt.Printf("%4d  %12.3f  %9.3f  %10.3f  %7.1f / %-6.0f  %7.1f / %-6.0f  %s\n",
			p.ID, p.FrequencyMHz, p.Slope, p.Intercept, p.CalHigh, p.HighCode, p.CalLow, p.LowCode, p.Quality)
	}

	return nil
}
