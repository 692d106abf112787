package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rfmetrics/powermeter/internal/calibration"
	"github.com/rfmetrics/powermeter/internal/meter"
	"github.com/rfmetrics/powermeter/internal/pathloss"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened lazily; the schema is applied when the write
// connection first opens.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) Init() error {
	_, err := s.getWriteDB()
	return err
}

func (s *SqliteStore) Devices(ctx context.Context) (devices []pathloss.Device, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectDevicesSQL)
	if err != nil {
		err = fmt.Errorf("querying devices: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	index := make(map[int64]int)
	for rows.Next() {
		var d pathloss.Device
		if err = rows.Scan(&d.ID, &d.Name, &d.InUse, &d.NominalDB); err != nil {
			err = fmt.Errorf("scanning device: %w", err)
			return
		}
		index[d.ID] = len(devices)
		devices = append(devices, d)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating devices: %w", err)
		return
	}

	params, err := db.QueryContext(ctx, selectDeviceParamsSQL)
	if err != nil {
		err = fmt.Errorf("querying device parameters: %w", err)
		return
	}
	defer closeWithError(params, &err)

	for params.Next() {
		var deviceID int64
		var p pathloss.Point
		if err = params.Scan(&deviceID, &p.FrequencyMHz, &p.LossDB); err != nil {
			err = fmt.Errorf("scanning device parameter: %w", err)
			return
		}
		if i, ok := index[deviceID]; ok {
			devices[i].Points = append(devices[i].Points, p)
		}
	}
	if err = params.Err(); err != nil {
		err = fmt.Errorf("iterating device parameters: %w", err)
	}
	return
}

func (s *SqliteStore) UpsertDevice(ctx context.Context, d pathloss.Device) (id int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	if _, err = db.ExecContext(ctx, upsertDeviceSQL, d.Name, d.InUse, d.NominalDB); err != nil {
		err = fmt.Errorf("upserting device: %w", err)
		return
	}

	// LastInsertId is meaningless when the conflict branch ran, so the ID
	// is read back by name either way.
	if err = db.QueryRowContext(ctx, selectDeviceIDSQL, d.Name).Scan(&id); err != nil {
		err = fmt.Errorf("getting device ID: %w", err)
	}
	return
}

func (s *SqliteStore) SetDeviceInUse(ctx context.Context, id int64, inUse bool) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, setDeviceInUseSQL, inUse, id); err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return nil
}

func (s *SqliteStore) ReplaceDeviceParams(ctx context.Context, deviceID int64, points []pathloss.Point) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteDeviceParamsSQL, deviceID); err != nil {
		return fmt.Errorf("deleting device parameters: %w", err)
	}

	if len(points) > 0 {
		values := make([]interface{}, 0, len(points)*3)

		var sb strings.Builder
		sb.WriteString(insertDeviceParamsSQL)

		for i, p := range points {
			values = append(values, deviceID, p.FrequencyMHz, p.LossDB)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?)")
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting device parameters: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) DeleteDevice(ctx context.Context, id int64) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteDeviceParamsSQL, id); err != nil {
		return fmt.Errorf("deleting device parameters: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deleteDeviceSQL, id); err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Calibrations(ctx context.Context) (points []calibration.Point, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCalibrationsSQL)
	if err != nil {
		err = fmt.Errorf("querying calibrations: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p calibration.Point
		if err = rows.Scan(
			&p.ID,
			&p.FrequencyMHz,
			&p.Slope,
			&p.Intercept,
			&p.CalHigh,
			&p.CalLow,
			&p.HighCode,
			&p.LowCode,
			&p.Quality,
		); err != nil {
			err = fmt.Errorf("scanning calibration: %w", err)
			return
		}
		points = append(points, p)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) InsertCalibration(ctx context.Context, p calibration.Point) (id int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertCalibrationSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		p.FrequencyMHz,
		p.Slope,
		p.Intercept,
		p.CalHigh,
		p.CalLow,
		p.HighCode,
		p.LowCode,
		p.Quality,
	)
	if err != nil {
		err = fmt.Errorf("inserting calibration: %w", err)
		return
	}

	id, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting calibration ID: %w", err)
	}
	return
}

func (s *SqliteStore) UpdateCalibrationTransform(ctx context.Context, id int64, t calibration.Transform) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, updateCalibrationSQL, t.Slope, t.Intercept, id); err != nil {
		return fmt.Errorf("updating calibration: %w", err)
	}
	return nil
}

func (s *SqliteStore) CreateRun(ctx context.Context, run Run) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	var notes sql.NullString
	if run.Notes != "" {
		notes.Valid = true
		notes.String = run.Notes
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(
		ctx,
		run.ID,
		run.StartedAt.UTC(),
		run.FrequencyMHz,
		run.BatchSize,
		run.WindowSize,
		run.AveragingMs,
		notes,
	); err != nil {
		err = fmt.Errorf("inserting run: %w", err)
	}
	return
}

func (s *SqliteStore) Run(ctx context.Context, id string) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var r Run
	var notes sql.NullString
	if err = db.QueryRowContext(ctx, selectRunSQL, id).Scan(
		&r.ID,
		&r.StartedAt,
		&r.FrequencyMHz,
		&r.BatchSize,
		&r.WindowSize,
		&r.AveragingMs,
		&notes,
	); err != nil {
		err = fmt.Errorf("scanning run: %w", err)
		return
	}
	if notes.Valid {
		r.Notes = notes.String
	}

	return &r, nil
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r Run
		var notes sql.NullString
		if err = rows.Scan(
			&r.ID,
			&r.StartedAt,
			&r.FrequencyMHz,
			&r.BatchSize,
			&r.WindowSize,
			&r.AveragingMs,
			&notes,
		); err != nil {
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		if notes.Valid {
			r.Notes = notes.String
		}
		runs = append(runs, &r)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) LatestRunID(ctx context.Context) (id string, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if err = db.QueryRowContext(ctx, selectLatestRunSQL).Scan(&id); err != nil {
		err = fmt.Errorf("selecting latest run: %w", err)
	}
	return
}

func (s *SqliteStore) StoreReadings(ctx context.Context, readings []meter.Reading) (err error) {
	if len(readings) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	// Build batch insert query
	values := make([]interface{}, 0, len(readings)*12)

	var sb strings.Builder
	sb.WriteString(insertReadingsSQL)

	for i, r := range readings {
		values = append(values,
			r.RunID,
			r.Time.UTC(),
			r.AverageDBm,
			r.PeakDBm,
			r.CorrectedDBm,
			r.LossDB,
			r.Watts,
			string(r.Unit),
			r.RangeIndex,
			r.SampleRate,
			int64(r.Samples),
			r.Overload,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	}

	// Single batch insert
	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting readings: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) ReadingsByRun(ctx context.Context, runID string, from, to time.Time) (readings []meter.Reading, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if from.IsZero() {
		from = time.Unix(0, 0)
	}
	if to.IsZero() {
		to = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
	}

	rows, err := db.QueryContext(ctx, selectReadingsSQL, runID, from.UTC(), to.UTC())
	if err != nil {
		err = fmt.Errorf("querying readings: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r meter.Reading
		var unit string
		var samples int64
		if err = rows.Scan(
			&r.RunID,
			&r.Time,
			&r.AverageDBm,
			&r.PeakDBm,
			&r.CorrectedDBm,
			&r.LossDB,
			&r.Watts,
			&unit,
			&r.RangeIndex,
			&r.SampleRate,
			&samples,
			&r.Overload,
		); err != nil {
			err = fmt.Errorf("scanning reading: %w", err)
			return
		}
		r.Unit = meter.Unit(unit)
		r.Samples = uint64(samples)
		readings = append(readings, r)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
