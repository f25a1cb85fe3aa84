// Package vehicletest provides a scriptable vehicle.Link for tests.
package vehicletest

import (
	"context"
	"fmt"
	"sync"

	"github.com/roman-kulish/althold/internal/vehicle"
)

// Link records every call and answers from its configuration. The zero value
// arms immediately and accepts every command.
type Link struct {
	mu sync.Mutex

	// ArmDelay is the number of Armed polls answering false after arming
	ArmDelay int
	// NeverArm keeps the vehicle disarmed whatever is requested
	NeverArm bool
	// DisarmAfter flips the vehicle to disarmed after that many armed polls, 0 disables
	DisarmAfter int

	ModeErrors  map[vehicle.Mode]error
	ArmErr      error
	DisarmErr   error
	ArmedErr    error
	OverrideErr error

	AttitudeValue vehicle.Attitude
	BatteryValue  vehicle.Battery

	calls     []string
	throttle  []int
	mode      vehicle.Mode
	armed     bool
	armAsked  bool
	armPolls  int
	armedSeen int
}

func (l *Link) record(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *Link) SetFlightMode(_ context.Context, mode vehicle.Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record("mode %s", mode)
	if err := l.ModeErrors[mode]; err != nil {
		return err
	}

	l.mode = mode
	return nil
}

func (l *Link) SetArmed(_ context.Context, armed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !armed {
		l.record("disarm")
		if l.DisarmErr != nil {
			return l.DisarmErr
		}
		l.armed = false
		l.armAsked = false
		return nil
	}

	l.record("arm")
	if l.ArmErr != nil {
		return l.ArmErr
	}
	l.armAsked = true
	return nil
}

func (l *Link) Armed() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ArmedErr != nil {
		return false, l.ArmedErr
	}

	if l.armAsked && !l.armed && !l.NeverArm {
		if l.armPolls >= l.ArmDelay {
			l.armed = true
		}
		l.armPolls++
	}

	if l.armed && l.DisarmAfter > 0 {
		if l.armedSeen >= l.DisarmAfter {
			l.armed = false
			l.armAsked = false
		}
		l.armedSeen++
	}

	return l.armed, nil
}

func (l *Link) OverrideChannel(channel int, value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record("rc%d %d", channel, value)
	if channel == vehicle.ThrottleChannel {
		l.throttle = append(l.throttle, value)
	}

	return l.OverrideErr
}

func (l *Link) Attitude() (vehicle.Attitude, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.AttitudeValue, nil
}

func (l *Link) Battery() (vehicle.Battery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.BatteryValue, nil
}

// Calls returns the recorded calls, e.g. "mode ALT_HOLD", "arm", "rc3 1300"
func (l *Link) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.calls...)
}

// Throttle returns every value written to the throttle channel
func (l *Link) Throttle() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]int(nil), l.throttle...)
}

// Mode returns the last accepted flight mode
func (l *Link) Mode() vehicle.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.mode
}

// IsArmed reports the simulated armed state without counting as a poll
func (l *Link) IsArmed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.armed
}

var _ vehicle.Link = (*Link)(nil)
