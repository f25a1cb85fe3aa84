package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/roman-kulish/althold/internal/control"
	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return plotMission(ctx, store, config, logger)
}

func plotMission(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (err error) {
	mission, err := store.Mission(ctx, config.MissionID)
	if err != nil {
		return err
	}

	logger.Info("mission",
		slog.Int64("id", mission.ID),
		slog.String("start", mission.StartTime.In(config.TimeZone).Format(time.DateTime)),
		slog.Float64("target", mission.TargetAltitude),
		slog.String("outcome", deref(mission.Outcome, "unfinished")))

	var opts []storage.ReaderOption
	if config.Phase != "" {
		opts = append(opts, storage.WithPhase(config.Phase))
	}

	iter, err := store.ReadTicks(ctx, config.MissionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	flight := NewFlightData()
	for iter.Next(ctx) {
		flight.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if flight.Empty() {
		return fmt.Errorf("mission %d has no recorded iterations", config.MissionID)
	}

	logger.Info("finished reading iterations",
		slog.Group("stats",
			slog.Int("iterations", len(flight.Points)),
			slog.Int("invalid", flight.Invalid),
			slog.Duration("duration", flight.Duration()),
			slog.String("maxAltitude", formatAltitude(flight.AltitudeMax)),
			slog.Int("minThrottle", flight.ThrottleMin),
			slog.Int("maxThrottle", flight.ThrottleMax),
		))

	renderer, err := NewFlightRenderer(RenderConfig{
		Width:          config.Width,
		Height:         config.Height,
		Location:       config.TimeZone,
		Title:          missionTitle(mission),
		TargetAltitude: mission.TargetAltitude,
		HoverBand:      control.DefaultConfig().Takeoff.HoverBand,
		OverAltitude:   failsafe.DefaultConfig().OverAltitudeFactor,
	})
	if err != nil {
		return fmt.Errorf("creating flight renderer: %w", err)
	}

	logger.Info("rendering flight",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(flight)
	if err != nil {
		return fmt.Errorf("rendering flight: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 95,
		})
	}
	return err
}

func missionTitle(m *storage.Mission) string {
	title := fmt.Sprintf("Mission %d, target %s", m.ID, formatAltitude(m.TargetAltitude))
	if m.Outcome != nil {
		title += ", " + *m.Outcome
	}
	if m.Verdict != nil && *m.Verdict != failsafe.Continue.String() {
		title += " (" + *m.Verdict + ")"
	}
	return title
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
