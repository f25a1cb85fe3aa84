// Package vehicle describes the flight controller as seen by the control loops.
package vehicle

import (
	"context"
	"errors"
	"fmt"
)

const (
	// MinThrottle is the PWM value that stops the motors
	MinThrottle = 1000

	// MaxThrottle is the highest PWM value ever sent to the flight controller
	MaxThrottle = 2000

	// ThrottleChannel is the RC channel carrying throttle on ArduCopter
	ThrottleChannel = 3

	// RCChannels is the number of RC channels that can be overridden
	RCChannels = 8
)

var (
	// ErrLink is the root of all flight controller link errors
	ErrLink = errors.New("flight controller link error")

	ErrCommandRejected = fmt.Errorf("%w: command rejected", ErrLink)
	ErrAckTimeout      = fmt.Errorf("%w: command not acknowledged", ErrLink)
	ErrHeartbeatLost   = fmt.Errorf("%w: heartbeat lost", ErrLink)
	ErrUnknownMode     = fmt.Errorf("%w: unknown flight mode", ErrLink)
	ErrInvalidChannel  = fmt.Errorf("%w: invalid RC channel", ErrLink)
)

// Mode is an ArduCopter flight mode name
type Mode string

const (
	ModeStabilize Mode = "STABILIZE"
	ModeAcro      Mode = "ACRO"
	ModeAltHold   Mode = "ALT_HOLD"
	ModeAuto      Mode = "AUTO"
	ModeGuided    Mode = "GUIDED"
	ModeLoiter    Mode = "LOITER"
	ModeRTL       Mode = "RTL"
	ModeCircle    Mode = "CIRCLE"
	ModeLand      Mode = "LAND"
	ModePosHold   Mode = "POSHOLD"
	ModeBrake     Mode = "BRAKE"
)

// Attitude is the vehicle orientation in radians
type Attitude struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Battery is the last reported battery state. Negative values mean unknown.
type Battery struct {
	Voltage float64 // Volts
	Current float64 // Amperes
	Level   int     // Remaining capacity in percent
}

// Link is the command and status channel to the flight controller.
// Implementations must be safe to call from a single control goroutine
// while telemetry is updated in the background.
type Link interface {
	SetFlightMode(ctx context.Context, mode Mode) error
	SetArmed(ctx context.Context, armed bool) error
	Armed() (bool, error)

	// OverrideChannel sets an RC channel to a PWM value. Zero releases the override.
	OverrideChannel(channel int, value int) error

	Attitude() (Attitude, error)
	Battery() (Battery, error)
}

// ClampThrottle limits v to [MinThrottle, MaxThrottle]
func ClampThrottle(v int) int {
	return min(max(v, MinThrottle), MaxThrottle)
}
