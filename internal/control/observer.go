package control

import (
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/rangefinder"
)

// Phase names the control loop that produced a Tick
type Phase string

const (
	PhaseTakeoff Phase = "takeoff"
	PhaseHold    Phase = "hold"
)

// Tick describes one control loop iteration
type Tick struct {
	Time        time.Time
	Phase       Phase
	State       string // takeoff state, empty during hold
	Sample      rangefinder.Sample
	SampleValid bool
	Throttle    int // throttle written in this iteration
	Verdict     failsafe.Verdict
}

// Observer receives every Tick. It runs on the control goroutine and must not block.
type Observer func(Tick)

type options struct {
	clock    Clock
	observer Observer
	logger   *slog.Logger
}

type Option func(o *options)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithObserver registers fn to receive every Tick
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(phase Phase, opts []Option) options {
	o := options{
		clock:    SystemClock(),
		observer: func(Tick) {},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range opts {
		option(&o)
	}

	o.logger = o.logger.With(slog.String("phase", string(phase)))
	return o
}
