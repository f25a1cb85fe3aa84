package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/rangefinder"
	"github.com/roman-kulish/althold/internal/vehicle"
)

// AltitudeSource yields rangefinder samples. rangefinder.ErrNoSample marks an
// invalid reading; any other error is a sensor failure.
type AltitudeSource interface {
	Next(ctx context.Context) (rangefinder.Sample, error)
}

var _ AltitudeSource = (*rangefinder.Reader)(nil)

type TakeoffState int

const (
	TakeoffStarting TakeoffState = iota
	TakeoffClimbing
	TakeoffReachedTarget
	TakeoffSuccess
	TakeoffAborted
)

var takeoffStateNames = [...]string{
	TakeoffStarting:      "Starting",
	TakeoffClimbing:      "Climbing",
	TakeoffReachedTarget: "ReachedTarget",
	TakeoffSuccess:       "Success",
	TakeoffAborted:       "Aborted",
}

func (s TakeoffState) String() string {
	if s < 0 || int(s) >= len(takeoffStateNames) {
		return fmt.Sprintf("TakeoffState(%d)", int(s))
	}
	return takeoffStateNames[s]
}

// TakeoffContext is the mutable state of one ascent
type TakeoffContext struct {
	State          TakeoffState
	TargetAltitude float64
	Throttle       int
	StartTime      time.Time
	ReachedTarget  bool
	Iterations     int
}

// TakeoffResult is returned by Takeoff.Run. Throttle is zero when the ascent aborted.
type TakeoffResult struct {
	Throttle   int
	State      TakeoffState
	Verdict    failsafe.Verdict
	Iterations int
	Elapsed    time.Duration
}

// Takeoff climbs to a target altitude by stepping the throttle from a fixed
// starting value, consulting the failsafe policy before every write.
type Takeoff struct {
	cfg      TakeoffConfig
	actuator Actuator
	policy   failsafe.Policy

	clock    Clock
	observer Observer
	logger   *slog.Logger
}

func NewTakeoff(c Config, policy failsafe.Policy, opts ...Option) *Takeoff {
	o := newOptions(PhaseTakeoff, opts)

	return &Takeoff{
		cfg:      c.Takeoff,
		actuator: NewActuator(c),
		policy:   policy,
		clock:    o.clock,
		observer: o.observer,
		logger:   o.logger,
	}
}

// Run performs the ascent. Each iteration reads one sample, computes the next
// throttle, evaluates the failsafe on it and either aborts or writes it.
// On abort the corrective action runs and a *FailsafeError is returned.
func (t *Takeoff) Run(ctx context.Context, link vehicle.Link, source AltitudeSource, target float64) (TakeoffResult, error) {
	tc := TakeoffContext{
		State:          TakeoffStarting,
		TargetAltitude: target,
		Throttle:       t.cfg.InitialThrottle,
		StartTime:      t.clock.Now(),
	}

	t.logger.Info("starting takeoff",
		slog.Float64("target", target),
		slog.Int("throttle", tc.Throttle),
		slog.String("mode", string(t.cfg.Mode)),
	)

	if err := link.SetFlightMode(ctx, t.cfg.Mode); err != nil {
		return t.abort(ctx, link, &tc, failsafe.AbortSensorLoss, rangefinder.Sample{}, false,
			fmt.Errorf("switching to %s: %w", t.cfg.Mode, err))
	}

	ticks := newSchedule(t.clock, t.cfg.Cadence.Std())
	for {
		began := t.clock.Now()

		sample, err := source.Next(ctx)
		valid := err == nil
		if err != nil && !errors.Is(err, rangefinder.ErrNoSample) {
			return t.abort(ctx, link, &tc, failsafe.AbortSensorLoss, sample, false, fmt.Errorf("reading rangefinder: %w", err))
		}

		candidate := tc.Throttle
		if valid {
			candidate = t.step(&tc, sample.Distance)
		}

		tc.Iterations++

		verdict := t.policy.Evaluate(failsafe.Input{
			Elapsed:        began.Sub(tc.StartTime),
			Throttle:       candidate,
			Altitude:       sample.Distance,
			TargetAltitude: target,
			SensorValid:    valid,
		})
		if verdict.Aborts() {
			var cause error
			if !valid {
				cause = err
			}
			return t.abort(ctx, link, &tc, verdict, sample, valid, cause)
		}

		tc.Throttle, err = t.actuator.WriteThrottle(link, candidate)
		if err != nil {
			return t.abort(ctx, link, &tc, failsafe.AbortSensorLoss, sample, valid, err)
		}

		metrics.Altitude.Set(sample.Distance)
		metrics.ControlIterationDuration.WithLabelValues(string(PhaseTakeoff)).Observe(t.clock.Now().Sub(began).Seconds())

		t.observer(Tick{
			Time:        began,
			Phase:       PhaseTakeoff,
			State:       tc.State.String(),
			Sample:      sample,
			SampleValid: valid,
			Throttle:    tc.Throttle,
			Verdict:     failsafe.Continue,
		})

		t.logger.Debug("takeoff iteration",
			slog.String("state", tc.State.String()),
			slog.Float64("altitude", sample.Distance),
			slog.Int("throttle", tc.Throttle),
		)

		if tc.State == TakeoffSuccess {
			elapsed := t.clock.Now().Sub(tc.StartTime)
			t.logger.Info("takeoff complete",
				slog.Float64("altitude", sample.Distance),
				slog.Int("throttle", tc.Throttle),
				slog.Int("iterations", tc.Iterations),
				slog.Duration("elapsed", elapsed),
			)

			return TakeoffResult{
				Throttle:   tc.Throttle,
				State:      TakeoffSuccess,
				Verdict:    failsafe.Continue,
				Iterations: tc.Iterations,
				Elapsed:    elapsed,
			}, nil
		}

		if err = ticks.wait(ctx); err != nil {
			return t.abort(ctx, link, &tc, failsafe.AbortSensorLoss, sample, valid, err)
		}
	}
}

// step advances the state machine with a valid altitude and returns the
// candidate throttle. The hover band is checked in the same iteration the
// target is first reached.
func (t *Takeoff) step(tc *TakeoffContext, altitude float64) int {
	switch tc.State {
	case TakeoffStarting:
		tc.State = TakeoffClimbing
		return tc.Throttle

	case TakeoffClimbing:
		if altitude < tc.TargetAltitude*t.cfg.ReachFraction {
			return tc.Throttle + t.cfg.Step
		}
		tc.ReachedTarget = true
		tc.State = TakeoffReachedTarget
	}

	if math.Abs(altitude-tc.TargetAltitude) <= t.cfg.HoverBand {
		tc.State = TakeoffSuccess
		return tc.Throttle
	}

	tc.State = TakeoffClimbing
	if altitude >= tc.TargetAltitude+t.cfg.HoverBand {
		return tc.Throttle - t.cfg.Step
	}
	return tc.Throttle + t.cfg.Step
}

func (t *Takeoff) abort(ctx context.Context, link vehicle.Link, tc *TakeoffContext, verdict failsafe.Verdict,
	sample rangefinder.Sample, valid bool, cause error) (TakeoffResult, error) {
	tc.State = TakeoffAborted
	elapsed := t.clock.Now().Sub(tc.StartTime)

	metrics.FailsafeTrips.WithLabelValues(string(PhaseTakeoff), verdict.String()).Inc()

	t.logger.Warn("takeoff aborted",
		slog.String("verdict", verdict.String()),
		slog.Int("throttle", tc.Throttle),
		slog.Float64("altitude", sample.Distance),
		slog.Bool("sensorValid", valid),
		slog.Any("cause", cause),
	)

	err := &FailsafeError{Phase: PhaseTakeoff, Verdict: verdict, Err: cause}

	// the vehicle must be made safe even when the mission context is gone
	if actionErr := t.actuator.Abort(context.WithoutCancel(ctx), link); actionErr != nil {
		t.logger.Error("corrective action failed", slog.Any("error", actionErr))
		err.Err = errors.Join(cause, fmt.Errorf("corrective action: %w", actionErr))
	}

	t.observer(Tick{
		Time:        t.clock.Now(),
		Phase:       PhaseTakeoff,
		State:       tc.State.String(),
		Sample:      sample,
		SampleValid: valid,
		Throttle:    vehicle.MinThrottle,
		Verdict:     verdict,
	})

	return TakeoffResult{
		Throttle:   0,
		State:      TakeoffAborted,
		Verdict:    verdict,
		Iterations: tc.Iterations,
		Elapsed:    elapsed,
	}, err
}
