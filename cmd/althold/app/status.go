package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/roman-kulish/althold/internal/telemetry"
)

// reportStatus logs the latest telemetry snapshot every period until ctx is done
func reportStatus(ctx context.Context, p telemetry.Provider, period time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t := p.Get()
		if t == nil || !t.Timestamp.After(last) {
			continue
		}
		last = t.Timestamp

		logger.Debug("status", statusAttrs(t)...)
	}
}

func statusAttrs(t *telemetry.Telemetry) []any {
	attrs := []any{slog.String("state", t.State)}
	if t.Phase != "" {
		attrs = append(attrs, slog.String("phase", t.Phase))
	}
	if t.Armed != nil {
		attrs = append(attrs, slog.Bool("armed", *t.Armed))
	}
	if t.Altitude != nil {
		attrs = append(attrs, slog.Float64("altitude", *t.Altitude))
	}
	if t.Throttle != nil {
		attrs = append(attrs, slog.Int64("throttle", *t.Throttle))
	}
	if t.Voltage != nil {
		attrs = append(attrs, slog.Float64("voltage", *t.Voltage))
	}
	if t.Battery != nil {
		attrs = append(attrs, slog.Int64("battery", *t.Battery))
	}

	return attrs
}
