package control

import (
	"time"

	"github.com/roman-kulish/althold/internal/config"
	"github.com/roman-kulish/althold/internal/vehicle"
)

// AbortAction is what the corrective action does after cutting the throttle
type AbortAction string

const (
	AbortDisarm        AbortAction = "disarm"
	AbortLand          AbortAction = "land"
	AbortDisarmAndLand AbortAction = "disarm+land"
)

// Config is the configuration shared by the takeoff and hold controllers
type Config struct {
	ThrottleChannel int           `yaml:"throttleChannel"`
	AbortAction     AbortAction   `yaml:"abortAction"`
	Takeoff         TakeoffConfig `yaml:"takeoff"`
	Hold            HoldConfig    `yaml:"hold"`
}

type TakeoffConfig struct {
	Mode            vehicle.Mode    `yaml:"mode"`            // flight mode set before climbing
	InitialThrottle int             `yaml:"initialThrottle"` // first throttle written
	Step            int             `yaml:"step"`            // throttle change per iteration
	Cadence         config.Duration `yaml:"cadence"`
	ReachFraction   float64         `yaml:"reachFraction"` // share of the target counted as reached
	HoverBand       float64         `yaml:"hoverBand"`     // meters around the target counted as success
}

type HoldConfig struct {
	Duration    config.Duration `yaml:"duration"`
	Cadence     config.Duration `yaml:"cadence"`
	Step        int             `yaml:"step"`
	Fraction    float64         `yaml:"fraction"` // above target*fraction the throttle steps down
	MinThrottle int             `yaml:"minThrottle"`
	MaxThrottle int             `yaml:"maxThrottle"`
}

func DefaultConfig() Config {
	return Config{
		ThrottleChannel: vehicle.ThrottleChannel,
		AbortAction:     AbortDisarm,
		Takeoff: TakeoffConfig{
			Mode:            vehicle.ModeAltHold,
			InitialThrottle: 1300,
			Step:            20,
			Cadence:         config.NewDuration(200 * time.Millisecond),
			ReachFraction:   0.90,
			HoverBand:       0.4,
		},
		Hold: HoldConfig{
			Duration:    config.NewDuration(3 * time.Second),
			Cadence:     config.NewDuration(50 * time.Millisecond),
			Step:        20,
			Fraction:    0.90,
			MinThrottle: vehicle.MinThrottle,
			MaxThrottle: 1900,
		},
	}
}

func (c *Config) Validate() error {
	if c.ThrottleChannel < 1 || c.ThrottleChannel > vehicle.RCChannels {
		return config.NewError("control.Config", "throttle channel must be within [1, %d]: %d given", vehicle.RCChannels, c.ThrottleChannel)
	}

	switch c.AbortAction {
	case AbortDisarm, AbortLand, AbortDisarmAndLand:
	default:
		return config.NewError("control.Config", "unsupported abort action %q", c.AbortAction)
	}

	t := c.Takeoff
	if t.InitialThrottle < vehicle.MinThrottle || t.InitialThrottle > vehicle.MaxThrottle {
		return config.NewError("control.Config", "takeoff initial throttle must be within [%d, %d]: %d given",
			vehicle.MinThrottle, vehicle.MaxThrottle, t.InitialThrottle)
	}
	if t.Step <= 0 {
		return config.NewError("control.Config", "takeoff step must be positive: %d given", t.Step)
	}
	if t.Cadence <= 0 {
		return config.NewError("control.Config", "takeoff cadence must be positive: %s given", t.Cadence)
	}
	if t.ReachFraction <= 0 || t.ReachFraction > 1 {
		return config.NewError("control.Config", "takeoff reach fraction must be within (0, 1]: %g given", t.ReachFraction)
	}
	if t.HoverBand <= 0 {
		return config.NewError("control.Config", "takeoff hover band must be positive: %g given", t.HoverBand)
	}
	if t.Mode == "" {
		return config.NewError("control.Config", "takeoff flight mode is required")
	}

	h := c.Hold
	if h.Duration <= 0 || h.Cadence <= 0 {
		return config.NewError("control.Config", "hold duration and cadence must be positive")
	}
	if h.Step <= 0 {
		return config.NewError("control.Config", "hold step must be positive: %d given", h.Step)
	}
	if h.Fraction <= 0 || h.Fraction > 1 {
		return config.NewError("control.Config", "hold fraction must be within (0, 1]: %g given", h.Fraction)
	}
	if h.MinThrottle < vehicle.MinThrottle || h.MaxThrottle > vehicle.MaxThrottle || h.MinThrottle >= h.MaxThrottle {
		return config.NewError("control.Config", "hold throttle range [%d, %d] must lie within [%d, %d]",
			h.MinThrottle, h.MaxThrottle, vehicle.MinThrottle, vehicle.MaxThrottle)
	}

	return nil
}
