// Package controltest provides a manual clock and scripted altitude sources.
package controltest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/althold/internal/rangefinder"
)

// Clock only moves when slept on or advanced
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()

	return nil
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleeps returns the durations of every Sleep call
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.sleeps...)
}

// Source answers Next from a function of the call index, starting at zero
type Source struct {
	mu    sync.Mutex
	calls int
	fn    func(i int) (rangefinder.Sample, error)
}

func NewSource(fn func(i int) (rangefinder.Sample, error)) *Source {
	return &Source{fn: fn}
}

// Altitudes returns the given altitudes in order and repeats the last one
func Altitudes(alts ...float64) *Source {
	return NewSource(func(i int) (rangefinder.Sample, error) {
		return rangefinder.Sample{Distance: alts[min(i, len(alts)-1)], Strength: 100}, nil
	})
}

// Climb starts at from and rises by rate every call
func Climb(from, rate float64) *Source {
	return NewSource(func(i int) (rangefinder.Sample, error) {
		return rangefinder.Sample{Distance: from + rate*float64(i), Strength: 100}, nil
	})
}

// Lost reports an invalid reading on every call
func Lost() *Source {
	return NewSource(func(int) (rangefinder.Sample, error) {
		return rangefinder.Sample{}, fmt.Errorf("%w: test", rangefinder.ErrNoSample)
	})
}

func (s *Source) Next(ctx context.Context) (rangefinder.Sample, error) {
	if err := ctx.Err(); err != nil {
		return rangefinder.Sample{}, err
	}

	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	return s.fn(i)
}

// Calls returns the number of Next calls
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}
