package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/rfmetrics/powermeter/internal/pathloss"
	"github.com/rfmetrics/powermeter/internal/storage"
	"github.com/rfmetrics/powermeter/internal/touchstone"
)

type options struct {
	dbPath  string
	name    string
	nominal float64
	use     bool
	list    bool
	enable  int64
	disable int64
	remove  int64
}

func main() {
	var opts options

	pflag.StringVarP(&opts.dbPath, "db", "d", "powermeter.db", "Path to the meter database")
	pflag.StringVarP(&opts.name, "name", "n", "", "Device name (default: file name without extension)")
	pflag.Float64Var(&opts.nominal, "nominal", 0, "Nominal loss label in dB, informational only")
	pflag.BoolVarP(&opts.use, "use", "u", true, "Mark the device in use after import")
	pflag.BoolVarP(&opts.list, "list", "l", false, "List stored loss devices and exit")
	pflag.Int64Var(&opts.enable, "enable", 0, "Mark an existing device in use by ID and exit")
	pflag.Int64Var(&opts.disable, "disable", 0, "Take an existing device out of use by ID and exit")
	pflag.Int64Var(&opts.remove, "delete", 0, "Delete a device and its loss table by ID and exit")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(opts, pflag.Args(), logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(opts options, args []string, logger *slog.Logger) error {
	store := storage.NewSqliteStore(opts.dbPath)
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	switch {
	case opts.list:
		return listDevices(ctx, store)

	case opts.enable != 0:
		if err := store.SetDeviceInUse(ctx, opts.enable, true); err != nil {
			return fmt.Errorf("failed to update device: %w", err)
		}
		logger.Info("device marked in use", slog.Int64("id", opts.enable))
		return nil

	case opts.disable != 0:
		if err := store.SetDeviceInUse(ctx, opts.disable, false); err != nil {
			return fmt.Errorf("failed to update device: %w", err)
		}
		logger.Info("device taken out of use", slog.Int64("id", opts.disable))
		return nil

	case opts.remove != 0:
		if err := store.DeleteDevice(ctx, opts.remove); err != nil {
			return fmt.Errorf("failed to delete device: %w", err)
		}
		logger.Info("device deleted", slog.Int64("id", opts.remove))
		return nil
	}

	if len(args) != 1 {
		return errors.New("expected exactly one .s2p file, see --help")
	}

	return importFile(ctx, store, args[0], opts, logger)
}

// importFile reads a two-port Touchstone file and stores its S21 insertion
// loss as a device loss table. Values stay in raw S21 dB, negative for a
// passive device; the loss summation flips the sign.
func importFile(ctx context.Context, store storage.Store, path string, opts options, logger *slog.Logger) error {
	network, err := touchstone.ReadFile(path)
	if err != nil {
		return err
	}

	name := opts.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s21 := network.S21DB()
	points := make([]pathloss.Point, len(s21))
	for i, p := range s21 {
		points[i] = pathloss.Point{
			FrequencyMHz: p.FrequencyHz / 1e6,
			LossDB:       p.DB,
		}
	}

	id, err := store.UpsertDevice(ctx, pathloss.Device{Name: name, InUse: opts.use, NominalDB: opts.nominal})
	if err != nil {
		return fmt.Errorf("failed to store device: %w", err)
	}
	if err := store.ReplaceDeviceParams(ctx, id, points); err != nil {
		return fmt.Errorf("failed to store loss table: %w", err)
	}

	logger.Info("loss table imported",
		slog.String("name", name),
		slog.Int64("id", id),
		slog.Int("points", len(points)),
		slog.Float64("fromMHz", points[0].FrequencyMHz),
		slog.Float64("toMHz", points[len(points)-1].FrequencyMHz),
		slog.Bool("inUse", opts.use),
	)

	return nil
}

func listDevices(ctx context.Context, store storage.Store) error {
	devices, err := store.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("no loss devices stored")
		return nil
	}

	fmt.Printf("%4s  %-24s  %-6s  %10s  %6s  %s\n", "ID", "NAME", "IN USE", "NOMINAL dB", "POINTS", "SPAN MHz")
	for _, d := range devices {
		span := "-"
		if n := len(d.Points); n > 0 {
			span = fmt.Sprintf("%.1f to %.1f", d.Points[0].FrequencyMHz, d.Points[n-1].FrequencyMHz)
		}

		inUse := "no"
		if d.InUse {
			inUse = "yes"
		}

		fmt.Printf("%4d  %-24s  %-6s  %10.1f  %6d  %s\n", d.ID, d.Name, inUse, d.NominalDB, len(d.Points), span)
	}

	return nil
}
