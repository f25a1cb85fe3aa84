package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const defaultReaderBatchSize = 1000

// ReaderOption configures a SqliteTickReader
type ReaderOption func(*SqliteTickReader)

// WithPhase limits the reader to iterations of one control phase
func WithPhase(phase string) ReaderOption {
	return func(r *SqliteTickReader) {
		r.phase = &phase
	}
}

// WithTimeRange limits the reader to iterations within [start, end]
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(r *SqliteTickReader) {
		start, end = start.UTC(), end.UTC()
		r.startTime = &start
		r.endTime = &end
	}
}

// WithBatchSize sets how many rows are fetched per query
func WithBatchSize(n int) ReaderOption {
	return func(r *SqliteTickReader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// SqliteTickReader pages through the ticks of a mission. Each instance must
// only be used from a single goroutine.
type SqliteTickReader struct {
	db        *sql.DB
	missionID int64

	phase     *string
	startTime *time.Time
	endTime   *time.Time
	batchSize int

	lastID  int64
	batch   []Tick
	pos     int
	current Tick
	done    bool
	err     error
}

func newSqliteTickReader(db *sql.DB, missionID int64, opts ...ReaderOption) *SqliteTickReader {
	r := &SqliteTickReader{
		db:        db,
		missionID: missionID,
		batchSize: defaultReaderBatchSize,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Next advances to the next tick. It returns false at the end of the data or
// on error; check Error to tell them apart.
func (r *SqliteTickReader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}

	if r.pos >= len(r.batch) {
		if r.done {
			return false
		}

		if r.err = r.fetch(ctx); r.err != nil || len(r.batch) == 0 {
			return false
		}
	}

	r.current = r.batch[r.pos]
	r.pos++
	return true
}

// Current returns the tick loaded by the last successful Next
func (r *SqliteTickReader) Current() Tick {
	return r.current
}

func (r *SqliteTickReader) Error() error {
	return r.err
}

func (r *SqliteTickReader) Close() error {
	r.batch = nil
	r.done = true
	return nil
}

func (r *SqliteTickReader) query() (string, []any) {
	var sb strings.Builder
	sb.WriteString(selectTicksSQL)

	args := []any{r.missionID, r.lastID}

	if r.phase != nil {
		sb.WriteString(" AND phase = ?")
		args = append(args, *r.phase)
	}

	if r.startTime != nil {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, *r.startTime)
	}

	if r.endTime != nil {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, *r.endTime)
	}

	sb.WriteString(" ORDER BY id LIMIT ?")
	args = append(args, r.batchSize)

	return sb.String(), args
}

func (r *SqliteTickReader) fetch(ctx context.Context) (err error) {
	query, args := r.query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying ticks: %w", err)
	}
	defer closeWithError(rows, &err)

	r.batch = r.batch[:0]
	r.pos = 0

	for rows.Next() {
		var d tickData
		if err = rows.Scan(
			&d.ID,
			&d.MissionID,
			&d.Timestamp,
			&d.Phase,
			&d.State,
			&d.Altitude,
			&d.Strength,
			&d.Temperature,
			&d.Throttle,
			&d.Verdict,
		); err != nil {
			return fmt.Errorf("scanning tick: %w", err)
		}

		r.batch = append(r.batch, fromTickData(&d))
		r.lastID = d.ID
	}

	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating ticks: %w", err)
	}

	if len(r.batch) < r.batchSize {
		r.done = true
	}

	return nil
}
