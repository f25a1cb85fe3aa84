package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/mission"
	"github.com/roman-kulish/althold/internal/rangefinder"
	"github.com/roman-kulish/althold/internal/storage"
	"github.com/roman-kulish/althold/internal/vehicle/mavlink"
)

const (
	storageDir   = "data"
	storageFile  = "flightlog.sqlite"
	statusPeriod = time.Second
)

// Run flies one mission with the given configuration. The returned error is
// non-nil when the mission could not start or ended Failed.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	g, gctx := errgroup.WithContext(ctx)
	background, stopBackground := context.WithCancel(gctx)
	defer func() {
		stopBackground()
		if werr := g.Wait(); werr != nil {
			err = errors.Join(err, werr)
		}
	}()

	if config.Metrics.Enabled {
		srv, err := metrics.Listen(config.Metrics.Address, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(background) })
	}

	port, err := rangefinder.OpenSerial(config.Rangefinder)
	if err != nil {
		return fmt.Errorf("failed to open rangefinder: %w", err)
	}
	defer port.Close()

	reader := rangefinder.NewReader(port,
		append(config.Rangefinder.ReaderOptions(), rangefinder.WithLogger(logger))...)

	logger.Info("connecting to flight controller", slog.String("endpoint", string(config.Link.Endpoint)))
	link, err := mavlink.Dial(ctx, config.Link, mavlink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect to flight controller: %w", err)
	}
	defer func() {
		if cerr := link.Close(); cerr != nil {
			logger.Warn("closing flight controller link", slog.Any("error", cerr))
		}
	}()

	options := []func(o *mission.Orchestrator){mission.WithLogger(logger)}

	var (
		store     *storage.SqliteStore
		recorder  *storage.Recorder
		missionID int64
	)
	if config.Storage.Enabled {
		if store, err = createStorage(&config.Storage); err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		if missionID, err = store.CreateMission(ctx, time.Now().UTC(), config.Mission.TargetAltitude, config); err != nil {
			return fmt.Errorf("creating mission: %w", err)
		}

		recorder = storage.NewRecorder(store, missionID,
			storage.WithRecorderLogger(logger),
			storage.WithBatching(config.Storage.MaxBatchSize, 500*time.Millisecond))
		options = append(options, mission.WithRecorder(recorder))
	}

	orchestrator := mission.NewOrchestrator(link, reader, config.Mission, config.Control,
		failsafe.NewPolicy(config.Failsafe), options...)

	g.Go(func() error {
		reportStatus(background, orchestrator, statusPeriod, logger)
		return nil
	})

	report, runErr := orchestrator.Run(ctx, config.Mission.TargetAltitude)
	logReport(logger, report)

	if recorder != nil {
		if err = recorder.Close(); err != nil {
			logger.Warn("flight log incomplete", slog.Any("error", err))
		}

		result := storage.MissionResult{
			EndTime:         report.StartedAt.Add(report.Duration).UTC(),
			Outcome:         string(report.Outcome),
			FinalState:      report.State.String(),
			Verdict:         report.Verdict.String(),
			TakeoffThrottle: report.TakeoffThrottle,
			HoldTicks:       report.HoldTicks,
			Reason:          report.Reason,
		}
		if err = store.FinishMission(context.WithoutCancel(ctx), missionID, result); err != nil {
			logger.Error("failed to finish mission record", slog.Int64("mission", missionID), slog.Any("error", err))
		}
	}

	return runErr
}

func logReport(logger *slog.Logger, r mission.Report) {
	attrs := []any{
		slog.String("outcome", string(r.Outcome)),
		slog.String("state", r.State.String()),
		slog.Float64("target", r.TargetAltitude),
		slog.Int("takeoffThrottle", r.TakeoffThrottle),
		slog.Int("holdTicks", r.HoldTicks),
		slog.Duration("duration", r.Duration),
	}
	if r.Verdict.Aborts() {
		attrs = append(attrs, slog.String("verdict", r.Verdict.String()))
	}
	if r.Reason != "" {
		attrs = append(attrs, slog.String("reason", r.Reason))
	}

	if r.Outcome == mission.Success {
		logger.Info("mission finished", attrs...)
	} else {
		logger.Error("mission finished", attrs...)
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	name := config.FileName
	if name == "" {
		name = storageFile
	}

	return storage.NewSqliteStore(filepath.Join(dir, name)), nil
}
