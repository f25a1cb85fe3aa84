// Package mission sequences a single altitude-hold flight: arm, climb, hold, land.
package mission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/althold/internal/control"
	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/telemetry"
	"github.com/roman-kulish/althold/internal/vehicle"
)

var (
	ErrAlreadyRun    = errors.New("mission already run")
	ErrInvalidTarget = errors.New("target altitude must be positive")
	ErrArmTimeout    = errors.New("vehicle did not arm in time")
)

// Outcome is the final result of a mission
type Outcome string

const (
	Success Outcome = "Success"
	Failure Outcome = "Failed"
)

// Recorder receives every control loop iteration. Record must not block.
type Recorder interface {
	Record(r telemetry.Record)
}

// Report summarises a finished mission
type Report struct {
	Outcome         Outcome
	State           State
	Verdict         failsafe.Verdict
	TargetAltitude  float64
	TakeoffThrottle int
	HoldTicks       int
	HoldCancelled   bool
	StartedAt       time.Time
	Duration        time.Duration
	Reason          string // failure cause, empty on success
}

type discardRecorder struct{}

func (discardRecorder) Record(telemetry.Record) {}

// WithLogger sets the logger for the orchestrator and its controllers
func WithLogger(logger *slog.Logger) func(o *Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock replaces the wall clock for the orchestrator and its controllers
func WithClock(c control.Clock) func(o *Orchestrator) {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithRecorder sends every control loop iteration to r
func WithRecorder(r Recorder) func(o *Orchestrator) {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator owns the vehicle link for the duration of one mission and
// drives it through the mission states. An Orchestrator runs at most once.
type Orchestrator struct {
	link     vehicle.Link
	source   control.AltitudeSource
	cfg      Config
	actuator control.Actuator

	takeoff *control.Takeoff
	hold    *control.Hold

	started  atomic.Bool
	mu       sync.Mutex
	state    State
	snapshot atomic.Pointer[telemetry.Telemetry]

	recorder Recorder
	clock    control.Clock
	logger   *slog.Logger
}

// NewOrchestrator creates a new Orchestrator with a discard logger
func NewOrchestrator(link vehicle.Link, source control.AltitudeSource, cfg Config, ctrl control.Config,
	policy failsafe.Policy, options ...func(o *Orchestrator)) *Orchestrator {
	o := Orchestrator{
		link:     link,
		source:   source,
		cfg:      cfg,
		actuator: control.NewActuator(ctrl),
		state:    Idle,
		recorder: discardRecorder{},
		clock:    control.SystemClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&o)
	}

	controlOptions := []control.Option{
		control.WithClock(o.clock),
		control.WithLogger(o.logger),
		control.WithObserver(o.observe),
	}

	o.takeoff = control.NewTakeoff(ctrl, policy, controlOptions...)
	o.hold = control.NewHold(ctrl, controlOptions...)
	o.logger = o.logger.With(slog.String("component", "mission"))

	return &o
}

// State returns the current mission state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Get returns the latest telemetry snapshot. Safe to call from any goroutine.
func (o *Orchestrator) Get() *telemetry.Telemetry {
	return o.snapshot.Load()
}

var _ telemetry.Provider = (*Orchestrator)(nil)

// Run flies the mission to target meters. The returned error is non-nil
// exactly when the report outcome is Failed. A rejected run reports Failed
// and leaves the state machine where it was.
func (o *Orchestrator) Run(ctx context.Context, target float64) (Report, error) {
	if target <= 0 {
		return o.reject(target, fmt.Errorf("%w: %g given", ErrInvalidTarget, target))
	}

	if !o.started.CompareAndSwap(false, true) {
		return o.reject(target, ErrAlreadyRun)
	}

	r := Report{TargetAltitude: target, StartedAt: o.clock.Now()}

	if err := o.transition(Arming); err != nil {
		return o.fail(ctx, &r, err, false)
	}

	o.logBattery()

	if err := o.link.SetFlightMode(ctx, o.cfg.PreArmMode); err != nil {
		return o.fail(ctx, &r, fmt.Errorf("switching to %s: %w", o.cfg.PreArmMode, err), true)
	}

	if err := o.link.SetArmed(ctx, true); err != nil {
		return o.fail(ctx, &r, fmt.Errorf("arming: %w", err), true)
	}

	if err := o.waitArmed(ctx); err != nil {
		return o.fail(ctx, &r, err, true)
	}

	if err := o.transition(TakingOff); err != nil {
		return o.fail(ctx, &r, err, true)
	}

	// the takeoff and hold controllers run the corrective action themselves
	takeoff, err := o.takeoff.Run(ctx, o.link, o.source, target)
	r.Verdict = takeoff.Verdict
	r.TakeoffThrottle = takeoff.Throttle
	if err != nil {
		return o.fail(ctx, &r, err, false)
	}

	if err = o.transition(Hovering); err != nil {
		return o.fail(ctx, &r, err, true)
	}

	hold, err := o.hold.Run(ctx, o.link, o.source, takeoff.Throttle, target)
	r.HoldTicks = hold.Ticks
	r.HoldCancelled = hold.Cancelled
	if err != nil {
		var fsErr *control.FailsafeError
		if errors.As(err, &fsErr) {
			r.Verdict = fsErr.Verdict
		}
		return o.fail(ctx, &r, err, false)
	}

	if err = o.clock.Sleep(ctx, o.cfg.LandDelay.Std()); err != nil {
		return o.fail(ctx, &r, fmt.Errorf("waiting to land: %w", err), true)
	}

	if err = o.link.SetFlightMode(ctx, o.cfg.LandMode); err != nil {
		return o.fail(ctx, &r, fmt.Errorf("switching to %s: %w", o.cfg.LandMode, err), true)
	}

	if err = o.transition(Landing); err != nil {
		return o.fail(ctx, &r, err, true)
	}

	r.Outcome = Success
	r.State = Landing
	r.Duration = o.clock.Now().Sub(r.StartedAt)

	metrics.MissionOutcomes.WithLabelValues(string(Success)).Inc()
	o.logger.Info("mission complete",
		slog.Int("takeoffThrottle", r.TakeoffThrottle),
		slog.Int("holdTicks", r.HoldTicks),
		slog.Bool("holdCancelled", r.HoldCancelled),
		slog.Duration("duration", r.Duration),
	)

	return r, nil
}

// waitArmed polls the armed flag until it is set, ctx is done or the arm timeout expires
func (o *Orchestrator) waitArmed(ctx context.Context) error {
	start := o.clock.Now()

	for polls := 1; ; polls++ {
		armed, err := o.link.Armed()
		if err != nil {
			return fmt.Errorf("checking armed state: %w", err)
		}
		o.update(func(t *telemetry.Telemetry) {
			t.Armed = telemetry.Ptr(armed)
		})
		if armed {
			o.logger.Info("vehicle armed", slog.Int("polls", polls))
			return nil
		}

		if polls%o.cfg.ArmDiagnosticEvery == 0 {
			o.logger.Info("arming, waiting for completion...",
				slog.Int("polls", polls),
				slog.Duration("elapsed", o.clock.Now().Sub(start)),
			)
		}

		if o.clock.Now().Sub(start) >= o.cfg.ArmTimeout.Std() {
			return fmt.Errorf("%w: not armed after %s", ErrArmTimeout, o.cfg.ArmTimeout)
		}

		if err = o.clock.Sleep(ctx, o.cfg.ArmPollInterval.Std()); err != nil {
			return fmt.Errorf("waiting for arming: %w", err)
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, r *Report, cause error, makeSafe bool) (Report, error) {
	if err := o.transition(Failed); err != nil {
		o.logger.Error("recording failure", slog.Any("error", err))
	}

	if makeSafe {
		if err := o.actuator.Abort(context.WithoutCancel(ctx), o.link); err != nil {
			o.logger.Error("corrective action failed", slog.Any("error", err))
			cause = errors.Join(cause, fmt.Errorf("corrective action: %w", err))
		}
	}

	r.Outcome = Failure
	r.State = Failed
	r.Reason = cause.Error()
	r.Duration = o.clock.Now().Sub(r.StartedAt)

	metrics.MissionOutcomes.WithLabelValues(string(Failure)).Inc()
	o.logger.Error("mission failed", slog.String("verdict", r.Verdict.String()), slog.Any("error", cause))

	return *r, cause
}

func (o *Orchestrator) reject(target float64, cause error) (Report, error) {
	o.logger.Error("mission rejected", slog.Float64("target", target), slog.Any("error", cause))

	return Report{
		Outcome:        Failure,
		State:          o.State(),
		TargetAltitude: target,
		StartedAt:      o.clock.Now(),
		Reason:         cause.Error(),
	}, cause
}

func (o *Orchestrator) transition(next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.state, next)
	}

	o.logger.Info("mission state changed", slog.String("from", o.state.String()), slog.String("to", next.String()))
	o.state = next

	metrics.SetMissionState(next.String())
	o.update(func(t *telemetry.Telemetry) {
		t.State = next.String()
	})

	return nil
}

func (o *Orchestrator) logBattery() {
	b, err := o.link.Battery()
	if err != nil {
		o.logger.Warn("battery status unavailable", slog.Any("error", err))
		return
	}

	o.logger.Info("battery",
		slog.Int("level", b.Level),
		slog.Float64("voltage", b.Voltage),
		slog.Float64("current", b.Current),
	)

	o.update(func(t *telemetry.Telemetry) {
		setBattery(t, b)
	})
}

// observe runs on the control goroutine for every control loop iteration
func (o *Orchestrator) observe(tk control.Tick) {
	rec := telemetry.Record{
		Timestamp: tk.Time,
		Phase:     string(tk.Phase),
		State:     tk.State,
		Throttle:  tk.Throttle,
		Verdict:   tk.Verdict.String(),
	}

	if tk.SampleValid {
		rec.Altitude = telemetry.Ptr(tk.Sample.Distance)
		rec.Strength = telemetry.Ptr(int64(tk.Sample.Strength))
		rec.Temperature = telemetry.Ptr(tk.Sample.Temperature)
	}

	o.recorder.Record(rec)

	attitude, attitudeErr := o.link.Attitude()
	battery, batteryErr := o.link.Battery()

	o.update(func(t *telemetry.Telemetry) {
		t.Phase = rec.Phase
		t.Throttle = telemetry.Ptr(int64(tk.Throttle))

		if tk.SampleValid {
			t.Altitude = rec.Altitude
			t.Strength = rec.Strength
			t.Temperature = rec.Temperature
		}

		if attitudeErr == nil {
			t.Roll = telemetry.Ptr(attitude.Roll)
			t.Pitch = telemetry.Ptr(attitude.Pitch)
			t.Yaw = telemetry.Ptr(attitude.Yaw)
		}

		if batteryErr == nil {
			setBattery(t, battery)
		}
	})
}

// update publishes a modified copy of the current snapshot
func (o *Orchestrator) update(fn func(t *telemetry.Telemetry)) {
	var next telemetry.Telemetry
	if current := o.snapshot.Load(); current != nil {
		next = *current
	}

	fn(&next)
	next.Timestamp = o.clock.Now()

	o.snapshot.Store(&next)
}

func setBattery(t *telemetry.Telemetry, b vehicle.Battery) {
	if b.Voltage >= 0 {
		t.Voltage = telemetry.Ptr(b.Voltage)
	}
	if b.Current >= 0 {
		t.Current = telemetry.Ptr(b.Current)
	}
	if b.Level >= 0 {
		t.Battery = telemetry.Ptr(int64(b.Level))
	}
}
