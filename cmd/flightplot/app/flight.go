package app

import (
	"math"
	"time"

	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/storage"
)

// TracePoint is one control loop iteration as plotted
type TracePoint struct {
	Offset   time.Duration // since the first iteration
	Altitude *float64
	Throttle int
	Phase    string
}

// AbortMark records where a failsafe stopped the flight
type AbortMark struct {
	Offset  time.Duration
	Verdict string
}

// FlightData accumulates the ticks of one mission for rendering
type FlightData struct {
	TimestampStart time.Time
	TimestampEnd   time.Time
	Points         []TracePoint
	Aborts         []AbortMark

	AltitudeMax float64
	ThrottleMin int
	ThrottleMax int
	Invalid     int // iterations without a valid reading
}

func NewFlightData() *FlightData {
	return &FlightData{
		ThrottleMin: math.MaxInt,
		ThrottleMax: math.MinInt,
	}
}

// Update adds a tick. Ticks must arrive in time order.
func (f *FlightData) Update(t storage.Tick) {
	if len(f.Points) == 0 {
		f.TimestampStart = t.Timestamp
	}
	f.TimestampEnd = t.Timestamp

	f.Points = append(f.Points, TracePoint{
		Offset:   t.Timestamp.Sub(f.TimestampStart),
		Altitude: t.Altitude,
		Throttle: t.Throttle,
		Phase:    t.Phase,
	})

	if t.Altitude != nil {
		f.AltitudeMax = math.Max(f.AltitudeMax, *t.Altitude)
	} else {
		f.Invalid++
	}

	f.ThrottleMin = min(f.ThrottleMin, t.Throttle)
	f.ThrottleMax = max(f.ThrottleMax, t.Throttle)

	if t.Verdict != "" && t.Verdict != failsafe.Continue.String() {
		f.Aborts = append(f.Aborts, AbortMark{Offset: t.Timestamp.Sub(f.TimestampStart), Verdict: t.Verdict})
	}
}

// Duration returns the time covered by the ticks
func (f *FlightData) Duration() time.Duration {
	return f.TimestampEnd.Sub(f.TimestampStart)
}

func (f *FlightData) Empty() bool {
	return len(f.Points) == 0
}
