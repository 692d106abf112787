package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/rfmetrics/powermeter/internal/storage"
)

// Run renders a stored measurement run into an image file.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	if err := store.Init(); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	return renderRun(ctx, store, config, logger)
}

func renderRun(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	runID := config.RunID
	if runID == "" {
		var err error
		if runID, err = store.LatestRunID(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.New("no runs recorded yet")
			}
			return fmt.Errorf("resolving latest run: %w", err)
		}
	}

	run, err := store.Run(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run '%s' does not exist", runID)
		}
		return fmt.Errorf("loading run: %w", err)
	}

	var from, to time.Time
	var filters []any
	if config.From != nil {
		from = *config.From
		filters = append(filters, slog.String("from", from.Format(time.DateTime)))
	}
	if config.To != nil {
		to = *config.To
		filters = append(filters, slog.String("to", to.Format(time.DateTime)))
	}
	if len(filters) > 0 {
		logger.Info("time window", filters...)
	}

	readings, err := store.ReadingsByRun(ctx, runID, from, to)
	if err != nil {
		return fmt.Errorf("loading readings: %w", err)
	}
	if len(readings) == 0 {
		return fmt.Errorf("run '%s' has no readings in the selected window", runID)
	}

	series := NewSeries(*run, readings)

	logger.Info("loaded run",
		slog.Group("stats",
			slog.String("run", run.ID),
			slog.Int("readings", len(series.Readings)),
			slog.String("start", series.Start.In(config.Location).Format(time.DateTime)),
			slog.String("end", series.End.In(config.Location).Format(time.DateTime)),
			slog.String("minPower", fmt.Sprintf("%0.2fdBm", series.MinDBm)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdBm", series.MaxDBm)),
		))

	renderer, err := NewChartRenderer(RenderConfig{
		Width:    config.Width,
		Height:   config.Height,
		Location: config.Location,
		Theme:    config.Theme,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(series)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	}
	if err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
