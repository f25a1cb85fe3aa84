package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/althold/internal/telemetry"
)

// maxTicksPerInsert keeps multi-row inserts well under the SQLite bound parameter limit
const maxTicksPerInsert = 500

// ErrNotFound is returned when a mission does not exist
var ErrNotFound = errors.New("not found")

// SqliteStore is a Store backed by a SQLite database file. The write and read
// connections are opened on first use.
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

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a new store for the database at dbPath
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

		// SQLite allows a single writer
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
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

func (s *SqliteStore) CreateMission(ctx context.Context, startTime time.Time, targetAltitude float64, config any) (missionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	result, err := db.ExecContext(ctx, insertMissionSQL, startTime.UTC(), targetAltitude, configData)
	if err != nil {
		err = fmt.Errorf("inserting mission: %w", err)
		return
	}

	missionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting mission ID: %w", err)
	}
	return
}

func (s *SqliteStore) FinishMission(ctx context.Context, missionID int64, r MissionResult) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, finishMissionSQL,
		r.EndTime.UTC(),
		r.Outcome,
		r.FinalState,
		r.Verdict,
		r.TakeoffThrottle,
		r.HoldTicks,
		sql.NullString{String: r.Reason, Valid: r.Reason != ""},
		missionID,
	)
	if err != nil {
		return fmt.Errorf("updating mission: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mission %d: %w", missionID, ErrNotFound)
	}

	return nil
}

func scanMission(row interface{ Scan(...any) error }) (*Mission, error) {
	var d missionData
	if err := row.Scan(
		&d.ID,
		&d.StartTime,
		&d.EndTime,
		&d.TargetAltitude,
		&d.Outcome,
		&d.FinalState,
		&d.Verdict,
		&d.TakeoffThrottle,
		&d.HoldTicks,
		&d.Reason,
		&d.Config,
	); err != nil {
		return nil, err
	}

	return fromMissionData(&d), nil
}

func (s *SqliteStore) Mission(ctx context.Context, id int64) (*Mission, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	m, err := scanMission(db.QueryRowContext(ctx, selectMissionSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mission %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning mission: %w", err)
	}

	return m, nil
}

func (s *SqliteStore) Missions(ctx context.Context) (missions []*Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMissionsSQL)
	if err != nil {
		err = fmt.Errorf("querying missions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m *Mission
		if m, err = scanMission(rows); err != nil {
			err = fmt.Errorf("scanning mission: %w", err)
			return
		}
		missions = append(missions, m)
	}

	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating missions: %w", err)
	}
	return
}

func (s *SqliteStore) StoreTicks(ctx context.Context, missionID int64, records []telemetry.Record) (err error) {
	if len(records) == 0 {
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

	for chunk := range slices.Chunk(records, maxTicksPerInsert) {
		values := make([]any, 0, len(chunk)*9)

		var sb strings.Builder
		sb.WriteString(insertTicksSQL)

		for i, r := range chunk {
			data := toTickData(missionID, r)
			values = append(values,
				data.MissionID,
				data.Timestamp,
				data.Phase,
				data.State,
				data.Altitude,
				data.Strength,
				data.Temperature,
				data.Throttle,
				data.Verdict,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(tickValuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting ticks: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ReadTicks returns a reader over the iterations of a mission in insertion order.
// The reader must be closed after use.
func (s *SqliteStore) ReadTicks(ctx context.Context, missionID int64, opts ...ReaderOption) (*SqliteTickReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	if _, err = s.Mission(ctx, missionID); err != nil {
		return nil, err
	}

	return newSqliteTickReader(db, missionID, opts...), nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
			s.writeDB = nil
		}

		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
			s.readDB = nil
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}
