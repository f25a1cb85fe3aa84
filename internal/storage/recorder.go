package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/telemetry"
)

const (
	defaultRecorderQueue      = 1024
	defaultRecorderBatchSize  = 64
	defaultRecorderFlushEvery = 500 * time.Millisecond
)

// TickStore is the part of Store used by Recorder
type TickStore interface {
	StoreTicks(ctx context.Context, missionID int64, records []telemetry.Record) error
}

// WithRecorderLogger sets the logger for the recorder
func WithRecorderLogger(logger *slog.Logger) func(r *Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recorder"))
	}
}

// WithBatching sets the largest batch written at once and how long a partial
// batch may wait
func WithBatching(size int, flushEvery time.Duration) func(r *Recorder) {
	return func(r *Recorder) {
		r.batchSize = size
		r.flushEvery = flushEvery
	}
}

// WithQueueSize sets how many records may wait before Record starts dropping
func WithQueueSize(n int) func(r *Recorder) {
	return func(r *Recorder) {
		r.queueSize = n
	}
}

// Recorder writes mission iterations to a TickStore in the background so the
// control loop never waits on disk I/O.
type Recorder struct {
	store     TickStore
	missionID int64

	records chan telemetry.Record
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	errs   []error

	queueSize  int
	batchSize  int
	flushEvery time.Duration
	logger     *slog.Logger
}

// NewRecorder creates a new Recorder for missionID and starts its writer goroutine
func NewRecorder(store TickStore, missionID int64, options ...func(r *Recorder)) *Recorder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	r := Recorder{
		store:      store,
		missionID:  missionID,
		queueSize:  defaultRecorderQueue,
		batchSize:  defaultRecorderBatchSize,
		flushEvery: defaultRecorderFlushEvery,
		logger:     logger,
	}

	for _, option := range options {
		option(&r)
	}

	r.records = make(chan telemetry.Record, r.queueSize)

	r.wg.Add(1)
	go r.handleRecords()

	return &r
}

// Record queues rec without blocking. When the queue is full the record is dropped.
func (r *Recorder) Record(rec telemetry.Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.records <- rec:
	default:
		metrics.RecorderDropped.Inc()
		r.logger.Warn("flight log queue full, dropping record", slog.String("phase", rec.Phase))
	}
}

// Close flushes queued records and stops the writer. It returns every write error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.records)
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.RLock()
	defer r.mu.RUnlock()

	return errors.Join(r.errs...)
}

func (r *Recorder) handleRecords() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	batch := make([]telemetry.Record, 0, r.batchSize)

	for {
		select {
		case rec, ok := <-r.records:
			if !ok {
				r.flush(batch)
				return
			}

			batch = append(batch, rec)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []telemetry.Record) {
	if len(batch) == 0 {
		return
	}

	if err := r.store.StoreTicks(context.Background(), r.missionID, batch); err != nil {
		r.logger.Error("storing flight log", slog.Int("records", len(batch)), slog.Any("error", err))

		r.mu.Lock()
		r.errs = append(r.errs, fmt.Errorf("storing %d records: %w", len(batch), err))
		r.mu.Unlock()
	}
}
