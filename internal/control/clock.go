package control

import (
	"context"
	"time"
)

// Clock is the time source of the control loops
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// schedule paces a loop at a fixed cadence measured from its start, so time
// spent working inside an iteration does not stretch the period. A late
// iteration moves the schedule forward instead of running a burst to catch up.
type schedule struct {
	clock   Clock
	cadence time.Duration
	next    time.Time
}

func newSchedule(clock Clock, cadence time.Duration) *schedule {
	return &schedule{clock: clock, cadence: cadence, next: clock.Now()}
}

// wait blocks until the next tick is due
func (s *schedule) wait(ctx context.Context) error {
	s.next = s.next.Add(s.cadence)

	d := s.next.Sub(s.clock.Now())
	if d < 0 {
		s.next = s.clock.Now()
		d = 0
	}

	return s.clock.Sleep(ctx, d)
}
