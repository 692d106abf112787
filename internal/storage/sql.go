package storage

import (
	_ "embed"
)

const (
	selectDevicesSQL = `
SELECT
    id,
    name,
    in_use,
    nominal_db
FROM devices
ORDER BY id`

	selectDeviceParamsSQL = `
SELECT
    device_id,
    frequency_mhz,
    loss_db
FROM device_params
ORDER BY
    device_id,
    frequency_mhz`

	upsertDeviceSQL = `
INSERT INTO devices (name,
                     in_use,
                     nominal_db)
VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET in_use     = excluded.in_use,
                                 nominal_db = excluded.nominal_db`

	selectDeviceIDSQL = `
SELECT id
FROM devices
WHERE
    name = ?`

	setDeviceInUseSQL = `
UPDATE devices
SET in_use = ?
WHERE
    id = ?`

	deleteDeviceParamsSQL = `
DELETE
FROM device_params
WHERE
    device_id = ?`

	deleteDeviceSQL = `
DELETE
FROM devices
WHERE
    id = ?`

	insertDeviceParamsSQL = `
INSERT INTO device_params (device_id,
                           frequency_mhz,
                           loss_db)
VALUES `

	selectCalibrationsSQL = `
SELECT
    id,
    frequency_mhz,
    slope,
    intercept,
    cal_high_dbm,
    cal_low_dbm,
    high_code,
    low_code,
    quality
FROM calibrations
ORDER BY frequency_mhz`

	insertCalibrationSQL = `
INSERT INTO calibrations (frequency_mhz,
                          slope,
                          intercept,
                          cal_high_dbm,
                          cal_low_dbm,
                          high_code,
                          low_code,
                          quality)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	updateCalibrationSQL = `
UPDATE calibrations
SET slope     = ?,
    intercept = ?
WHERE
    id = ?`

	insertRunSQL = `
INSERT INTO runs (id,
                  started_at,
                  frequency_mhz,
                  batch_size,
                  window_size,
                  averaging_ms,
                  notes)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectRunSQL = `
SELECT
    id,
    started_at,
    frequency_mhz,
    batch_size,
    window_size,
    averaging_ms,
    notes
FROM runs
WHERE
    id = ?`

	selectRunsSQL = `
SELECT
    id,
    started_at,
    frequency_mhz,
    batch_size,
    window_size,
    averaging_ms,
    notes
FROM runs
ORDER BY started_at`

	selectLatestRunSQL = `
SELECT id
FROM runs
ORDER BY started_at DESC
LIMIT 1`

	insertReadingsSQL = `
INSERT INTO readings (run_id,
                      time,
                      average_dbm,
                      peak_dbm,
                      corrected_dbm,
                      loss_db,
                      watts,
                      unit,
                      range_idx,
                      sample_rate,
                      samples,
                      overload)
VALUES `

	selectReadingsSQL = `
SELECT
    run_id,
    time,
    average_dbm,
    peak_dbm,
    corrected_dbm,
    loss_db,
    watts,
    unit,
    range_idx,
    sample_rate,
    samples,
    overload
FROM readings
WHERE
    run_id = ?
    AND time >= ?
    AND time <= ?
ORDER BY time`

	// The readings index is built when the store closes so that inserts on
	// the hot path stay cheap.
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_readings_run_time
    ON readings (run_id, time)`
)

//go:embed schema.sql
var schemaSQL string
