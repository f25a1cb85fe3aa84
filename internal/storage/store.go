package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/althold/internal/telemetry"
)

// Store is the flight log. It records missions and their control loop
// iterations. All operations that write to the database are atomic.
type Store interface {
	// CreateMission starts a new mission record and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - startTime: Time the mission began
	//   - targetAltitude: Requested hover altitude in meters
	//   - config: Optional configuration snapshot. Can be string, []byte, or JSON-serializable object
	CreateMission(ctx context.Context, startTime time.Time, targetAltitude float64, config any) (missionID int64, err error)

	// FinishMission records how the mission ended. It may be called once per mission.
	FinishMission(ctx context.Context, missionID int64, result MissionResult) error

	// Mission retrieves a mission by its ID
	Mission(ctx context.Context, id int64) (*Mission, error)

	// Missions returns every stored mission ordered by start time
	Missions(ctx context.Context) ([]*Mission, error)

	// StoreTicks saves control loop iterations of a mission in a single transaction
	StoreTicks(ctx context.Context, missionID int64, records []telemetry.Record) error

	// Close releases all database connections. It is safe to call Close multiple times.
	Close() error
}
