package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertMissionSQL = `
INSERT INTO missions (
                      start_time,
                      target_altitude,
                      config)
VALUES (?, ?, ?)`

	finishMissionSQL = `
UPDATE missions
SET end_time         = ?,
    outcome          = ?,
    final_state      = ?,
    verdict          = ?,
    takeoff_throttle = ?,
    hold_ticks       = ?,
    reason           = ?
WHERE id = ?`

	selectMissionSQL = `
SELECT
    id,
    start_time,
    end_time,
    target_altitude,
    outcome,
    final_state,
    verdict,
    takeoff_throttle,
    hold_ticks,
    reason,
    config
FROM missions
WHERE
    id = ?`

	selectMissionsSQL = `
SELECT
    id,
    start_time,
    end_time,
    target_altitude,
    outcome,
    final_state,
    verdict,
    takeoff_throttle,
    hold_ticks,
    reason,
    config
FROM missions
ORDER BY start_time, id`

	insertTicksSQL = `
INSERT INTO ticks (
                   mission_id,
                   timestamp,
                   phase,
                   state,
                   altitude,
                   strength,
                   temperature,
                   throttle,
                   verdict)
VALUES `

	tickValuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"

	selectTicksSQL = `
SELECT
    id,
    mission_id,
    timestamp,
    phase,
    state,
    altitude,
    strength,
    temperature,
    throttle,
    verdict
FROM ticks
WHERE
    mission_id = ?
    AND id > ?`
)
