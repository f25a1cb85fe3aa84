package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/vehicle"
)

// Actuator writes throttle commands and performs the corrective action
type Actuator struct {
	Channel int
	Action  AbortAction
}

func NewActuator(c Config) Actuator {
	return Actuator{Channel: c.ThrottleChannel, Action: c.AbortAction}
}

// WriteThrottle clamps v to the valid PWM range, writes it and returns the
// value written.
func (a Actuator) WriteThrottle(link vehicle.Link, v int) (int, error) {
	v = vehicle.ClampThrottle(v)

	if err := link.OverrideChannel(a.Channel, v); err != nil {
		return v, fmt.Errorf("writing throttle %d: %w", v, err)
	}

	metrics.ThrottleCommand.Set(float64(v))
	return v, nil
}

// Abort forces the throttle to minimum and then disarms, lands or both.
// Every step is attempted even if an earlier one fails. Safe to repeat.
func (a Actuator) Abort(ctx context.Context, link vehicle.Link) error {
	var errs []error

	if _, err := a.WriteThrottle(link, vehicle.MinThrottle); err != nil {
		errs = append(errs, err)
	}

	switch a.Action {
	case AbortLand:
		if err := link.SetFlightMode(ctx, vehicle.ModeLand); err != nil {
			errs = append(errs, fmt.Errorf("switching to %s: %w", vehicle.ModeLand, err))
		}
	case AbortDisarmAndLand:
		if err := link.SetFlightMode(ctx, vehicle.ModeLand); err != nil {
			errs = append(errs, fmt.Errorf("switching to %s: %w", vehicle.ModeLand, err))
		}
		fallthrough
	default:
		if err := link.SetArmed(ctx, false); err != nil {
			errs = append(errs, fmt.Errorf("disarming: %w", err))
		}
	}

	return errors.Join(errs...)
}
