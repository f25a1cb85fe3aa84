// Package failsafe decides whether an ascent must be aborted.
package failsafe

import (
	"fmt"
	"time"

	"github.com/roman-kulish/althold/internal/config"
	"github.com/roman-kulish/althold/internal/vehicle"
)

// Verdict is the outcome of a failsafe evaluation
type Verdict int

const (
	Continue Verdict = iota
	AbortSensorLoss
	AbortOverThrottle
	AbortTimeout
	AbortOutOfRange
)

var verdictNames = [...]string{
	Continue:          "continue",
	AbortSensorLoss:   "sensor_loss",
	AbortOverThrottle: "over_throttle",
	AbortTimeout:      "timeout",
	AbortOutOfRange:   "out_of_range",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return fmt.Sprintf("verdict(%d)", int(v))
	}
	return verdictNames[v]
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Aborts reports whether v requires the corrective action
func (v Verdict) Aborts() bool {
	return v != Continue
}

// Config holds the abort thresholds
type Config struct {
	ThrottleCeiling    int             `yaml:"throttleCeiling"`
	Timeout            config.Duration `yaml:"timeout"`
	OverAltitudeFactor float64         `yaml:"overAltitudeFactor"`
}

func DefaultConfig() Config {
	return Config{
		ThrottleCeiling:    1800,
		Timeout:            config.NewDuration(10 * time.Second),
		OverAltitudeFactor: 1.30,
	}
}

func (c *Config) Validate() error {
	if c.ThrottleCeiling <= vehicle.MinThrottle || c.ThrottleCeiling > vehicle.MaxThrottle {
		return config.NewError("failsafe.Config", "throttle ceiling must be within (%d, %d]: %d given",
			vehicle.MinThrottle, vehicle.MaxThrottle, c.ThrottleCeiling)
	}

	if c.Timeout <= 0 {
		return config.NewError("failsafe.Config", "timeout must be positive: %s given", c.Timeout)
	}

	if c.OverAltitudeFactor <= 1 {
		return config.NewError("failsafe.Config", "over-altitude factor must be greater than 1: %g given", c.OverAltitudeFactor)
	}

	return nil
}

// Input is the state of one takeoff iteration. Throttle is the candidate
// command before it is written.
type Input struct {
	Elapsed        time.Duration
	Throttle       int
	Altitude       float64
	TargetAltitude float64
	SensorValid    bool
}

// Policy evaluates Input against the configured thresholds. The zero value is
// not usable, create one with NewPolicy.
type Policy struct {
	ceiling      int
	timeout      time.Duration
	overAltitude float64
}

func NewPolicy(c Config) Policy {
	return Policy{
		ceiling:      c.ThrottleCeiling,
		timeout:      c.Timeout.Std(),
		overAltitude: c.OverAltitudeFactor,
	}
}

// Evaluate returns the highest priority verdict that applies:
// sensor loss, over-throttle, timeout, out of range. Altitude is ignored
// when the sensor reading is invalid.
func (p Policy) Evaluate(in Input) Verdict {
	switch {
	case !in.SensorValid:
		return AbortSensorLoss
	case in.Throttle > p.ceiling:
		return AbortOverThrottle
	case in.Elapsed > p.timeout:
		return AbortTimeout
	case in.Altitude > in.TargetAltitude*p.overAltitude:
		return AbortOutOfRange
	}

	return Continue
}
