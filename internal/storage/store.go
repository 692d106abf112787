package storage

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rfmetrics/powermeter/internal/calibration"
	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/pathloss"
)

// Store persists the meter's reference data (loss devices, calibrations)
// and its measurement output (runs, readings). A measurement run only needs
// read access; writes happen between runs or on the recording path, which
// batches inserts into single transactions.
type Store interface {
	// Init opens the write connection and applies the schema. Reading from
	// a database file that does not exist yet fails without it.
	Init() error

	// Devices returns every loss device with its loss table, points sorted
	// by frequency ascending as the interpolation requires.
	Devices(ctx context.Context) ([]pathloss.Device, error)

	// UpsertDevice inserts a device or, when the name is already present,
	// updates its in-use flag and nominal loss. Returns the device ID.
	UpsertDevice(ctx context.Context, d pathloss.Device) (int64, error)

	// SetDeviceInUse includes or excludes a device from the loss sum.
	SetDeviceInUse(ctx context.Context, id int64, inUse bool) error

	// ReplaceDeviceParams atomically swaps a device's loss table for the
	// given points.
	ReplaceDeviceParams(ctx context.Context, deviceID int64, points []pathloss.Point) error

	// DeleteDevice removes a device and its loss table.
	DeleteDevice(ctx context.Context, id int64) error

	// Calibrations returns every calibration point, ordered by frequency.
	Calibrations(ctx context.Context) ([]calibration.Point, error)

	// InsertCalibration stores a new calibration point and returns its ID.
	InsertCalibration(ctx context.Context, p calibration.Point) (int64, error)

	// UpdateCalibrationTransform writes a derived slope and intercept onto
	// an existing calibration point.
	UpdateCalibrationTransform(ctx context.Context, id int64, t calibration.Transform) error

	// CreateRun records the start of a measurement run.
	CreateRun(ctx context.Context, run Run) error

	// Run retrieves a single run by ID.
	Run(ctx context.Context, id string) (*Run, error)

	// Runs returns all runs ordered by start time.
	Runs(ctx context.Context) ([]*Run, error)

	// LatestRunID returns the ID of the most recently started run.
	LatestRunID(ctx context.Context) (string, error)

	// StoreReadings inserts a batch of readings in a single transaction.
	// Each reading carries its own run ID.
	StoreReadings(ctx context.Context, readings []meter.Reading) error

	// ReadingsByRun returns a run's readings ordered by time. Zero from/to
	// bounds are open.
	ReadingsByRun(ctx context.Context, runID string, from, to time.Time) ([]meter.Reading, error)

	// Close releases the database connections. It is safe to call Close
	// multiple times.
	Close() error
}
