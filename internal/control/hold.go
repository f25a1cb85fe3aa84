package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/vehicle"
)

// HoldResult is returned by Hold.Run
type HoldResult struct {
	Throttle  int  // last throttle written
	Ticks     int  // iterations completed
	Cancelled bool // the vehicle was disarmed before the duration elapsed
}

// Hold keeps the vehicle near the target altitude for a fixed duration by
// nudging the throttle around target*fraction.
type Hold struct {
	cfg      HoldConfig
	actuator Actuator

	clock    Clock
	observer Observer
	logger   *slog.Logger
}

func NewHold(c Config, opts ...Option) *Hold {
	o := newOptions(PhaseHold, opts)

	return &Hold{
		cfg:      c.Hold,
		actuator: NewActuator(c),
		clock:    o.clock,
		observer: o.observer,
		logger:   o.logger,
	}
}

// Run holds altitude starting from throttle. It ends when the duration elapses
// or the vehicle is disarmed. A sensor or link failure aborts with the
// corrective action and a *FailsafeError.
func (h *Hold) Run(ctx context.Context, link vehicle.Link, source AltitudeSource, throttle int, target float64) (HoldResult, error) {
	res := HoldResult{Throttle: throttle}
	duration := h.cfg.Duration.Std()
	start := h.clock.Now()

	h.logger.Info("holding altitude",
		slog.Float64("target", target),
		slog.Int("throttle", throttle),
		slog.Duration("duration", duration),
	)

	ticks := newSchedule(h.clock, h.cfg.Cadence.Std())
	for h.clock.Now().Sub(start) < duration {
		began := h.clock.Now()

		armed, err := link.Armed()
		if err != nil {
			return h.abort(ctx, link, res, fmt.Errorf("checking armed state: %w", err))
		}
		if !armed {
			h.logger.Warn("vehicle disarmed, hold cancelled", slog.Int("ticks", res.Ticks))
			res.Cancelled = true
			return res, nil
		}

		sample, err := source.Next(ctx)
		if err != nil {
			return h.abort(ctx, link, res, fmt.Errorf("reading rangefinder: %w", err))
		}

		next := res.Throttle + h.cfg.Step
		if sample.Distance > target*h.cfg.Fraction {
			next = res.Throttle - h.cfg.Step
		}
		next = min(max(next, h.cfg.MinThrottle), h.cfg.MaxThrottle)

		if res.Throttle, err = h.actuator.WriteThrottle(link, next); err != nil {
			return h.abort(ctx, link, res, err)
		}
		res.Ticks++

		metrics.Altitude.Set(sample.Distance)
		metrics.ControlIterationDuration.WithLabelValues(string(PhaseHold)).Observe(h.clock.Now().Sub(began).Seconds())

		h.observer(Tick{
			Time:        began,
			Phase:       PhaseHold,
			Sample:      sample,
			SampleValid: true,
			Throttle:    res.Throttle,
			Verdict:     failsafe.Continue,
		})

		if err = ticks.wait(ctx); err != nil {
			return h.abort(ctx, link, res, err)
		}
	}

	h.logger.Info("hold complete", slog.Int("ticks", res.Ticks), slog.Int("throttle", res.Throttle))
	return res, nil
}

func (h *Hold) abort(ctx context.Context, link vehicle.Link, res HoldResult, cause error) (HoldResult, error) {
	verdict := failsafe.AbortSensorLoss

	metrics.FailsafeTrips.WithLabelValues(string(PhaseHold), verdict.String()).Inc()
	h.logger.Warn("hold aborted", slog.Int("ticks", res.Ticks), slog.Int("throttle", res.Throttle), slog.Any("cause", cause))

	err := &FailsafeError{Phase: PhaseHold, Verdict: verdict, Err: cause}

	if actionErr := h.actuator.Abort(context.WithoutCancel(ctx), link); actionErr != nil {
		h.logger.Error("corrective action failed", slog.Any("error", actionErr))
		err.Err = errors.Join(cause, fmt.Errorf("corrective action: %w", actionErr))
	}

	h.observer(Tick{
		Time:     h.clock.Now(),
		Phase:    PhaseHold,
		Throttle: vehicle.MinThrottle,
		Verdict:  verdict,
	})

	res.Throttle = vehicle.MinThrottle
	return res, err
}
