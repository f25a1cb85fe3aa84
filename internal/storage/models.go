package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/althold/internal/telemetry"
)

// Mission is a stored flight. Pointer fields are nil until the mission finishes.
type Mission struct {
	ID              int64
	StartTime       time.Time
	EndTime         *time.Time
	TargetAltitude  float64
	Outcome         *string
	FinalState      *string
	Verdict         *string
	TakeoffThrottle *int64
	HoldTicks       *int64
	Reason          *string
	Config          *string
}

// MissionResult is written once when a mission ends
type MissionResult struct {
	EndTime         time.Time
	Outcome         string
	FinalState      string
	Verdict         string
	TakeoffThrottle int
	HoldTicks       int
	Reason          string
}

// Tick is a stored control loop iteration
type Tick struct {
	ID        int64
	MissionID int64
	telemetry.Record
}

type missionData struct {
	ID              int64
	StartTime       time.Time
	EndTime         sql.NullTime
	TargetAltitude  float64
	Outcome         sql.NullString
	FinalState      sql.NullString
	Verdict         sql.NullString
	TakeoffThrottle sql.NullInt64
	HoldTicks       sql.NullInt64
	Reason          sql.NullString
	Config          sql.NullString
}

type tickData struct {
	ID          int64
	MissionID   int64
	Timestamp   time.Time
	Phase       string
	State       sql.NullString
	Altitude    sql.NullFloat64
	Strength    sql.NullInt64
	Temperature sql.NullFloat64
	Throttle    int64
	Verdict     string
}
