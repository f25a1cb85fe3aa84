package control

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/althold/internal/control/controltest"
	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/rangefinder"
	"github.com/roman-kulish/althold/internal/vehicle"
	"github.com/roman-kulish/althold/internal/vehicle/vehicletest"
)

func newTestHold(t *testing.T, opts ...Option) (*Hold, *controltest.Clock) {
	t.Helper()

	clock := controltest.NewClock()
	return NewHold(DefaultConfig(), append([]Option{WithClock(clock)}, opts...)...), clock
}

func armedLink(t *testing.T, l *vehicletest.Link) *vehicletest.Link {
	t.Helper()

	require.NoError(t, l.SetArmed(context.Background(), true))
	return l
}

func TestHold_RunsForDuration(t *testing.T) {
	var ticks int
	hold, clock := newTestHold(t, WithObserver(func(Tick) { ticks++ }))
	link := armedLink(t, &vehicletest.Link{})
	source := controltest.Altitudes(1.0)

	res, err := hold.Run(context.Background(), link, source, 1400, 1.0)
	require.NoError(t, err)

	assert.Equal(t, 60, res.Ticks)
	assert.Equal(t, 60, source.Calls())
	assert.Equal(t, 60, ticks)
	assert.Len(t, clock.Sleeps(), 60)
	assert.False(t, res.Cancelled)

	// above 0.9 x target every tick steps down until the floor
	writes := link.Throttle()
	require.Len(t, writes, 60)
	assert.Equal(t, 1380, writes[0])
	assert.Equal(t, vehicle.MinThrottle, writes[59])
	assert.Equal(t, vehicle.MinThrottle, res.Throttle)
	assert.NotContains(t, link.Calls(), "disarm")
}

func TestHold_StepsUpToCeiling(t *testing.T) {
	hold, _ := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{})

	res, err := hold.Run(context.Background(), link, controltest.Altitudes(0.5), 1850, 1.0)
	require.NoError(t, err)

	writes := link.Throttle()
	assert.Equal(t, []int{1870, 1890, 1900, 1900}, writes[:4])
	assert.Equal(t, 1900, res.Throttle)
	for _, v := range writes {
		assert.LessOrEqual(t, v, 1900)
	}
}

func TestHold_AtThresholdStepsUp(t *testing.T) {
	hold, _ := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{})

	// exactly target x fraction is not above it
	_, err := hold.Run(context.Background(), link, controltest.Altitudes(0.9), 1500, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1520, link.Throttle()[0])
}

func TestHold_CancelledWhenDisarmed(t *testing.T) {
	hold, _ := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{DisarmAfter: 5})

	res, err := hold.Run(context.Background(), link, controltest.Altitudes(1.0), 1400, 1.0)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 5, res.Ticks)
	assert.Len(t, link.Throttle(), 5)
	assert.NotContains(t, link.Throttle(), vehicle.MinThrottle)
}

func TestHold_SensorLossAborts(t *testing.T) {
	hold, _ := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{})

	source := controltest.NewSource(func(i int) (rangefinder.Sample, error) {
		if i < 3 {
			return rangefinder.Sample{Distance: 1.0}, nil
		}
		return controltest.Lost().Next(context.Background())
	})

	res, err := hold.Run(context.Background(), link, source, 1400, 1.0)

	fsErr := requireFailsafe(t, err, failsafe.AbortSensorLoss)
	assert.Equal(t, PhaseHold, fsErr.Phase)
	assert.ErrorIs(t, err, rangefinder.ErrNoSample)
	assert.Equal(t, 3, res.Ticks)
	assert.Equal(t, vehicle.MinThrottle, res.Throttle)
	assert.Equal(t, []int{1380, 1360, 1340, vehicle.MinThrottle}, link.Throttle())
	assert.False(t, link.IsArmed())
}

func TestHold_LinkFailureAborts(t *testing.T) {
	hold, _ := newTestHold(t)
	link := &vehicletest.Link{ArmedErr: vehicle.ErrHeartbeatLost}

	res, err := hold.Run(context.Background(), link, controltest.Altitudes(1.0), 1400, 1.0)

	requireFailsafe(t, err, failsafe.AbortSensorLoss)
	assert.ErrorIs(t, err, vehicle.ErrHeartbeatLost)
	assert.Zero(t, res.Ticks)
	assert.Equal(t, []int{vehicle.MinThrottle}, link.Throttle())
}

func TestHold_WallClockBound(t *testing.T) {
	hold, clock := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{})

	// each reading takes a full second of wall time
	source := controltest.NewSource(func(int) (rangefinder.Sample, error) {
		clock.Advance(time.Second)
		return rangefinder.Sample{Distance: 1.0}, nil
	})

	res, err := hold.Run(context.Background(), link, source, 1400, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ticks)
}

func TestHold_ThrottleStaysInBounds(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 50; run++ {
		hold, _ := newTestHold(t)
		link := armedLink(t, &vehicletest.Link{})
		source := controltest.NewSource(func(int) (rangefinder.Sample, error) {
			return rangefinder.Sample{Distance: rnd.Float64() * 2}, nil
		})

		start := 800 + rnd.IntN(1400)
		_, err := hold.Run(context.Background(), link, source, start, 1.0)
		require.NoError(t, err)

		for _, v := range link.Throttle() {
			require.GreaterOrEqual(t, v, vehicle.MinThrottle)
			require.LessOrEqual(t, v, 1900)
		}
	}
}

func TestHold_FixedCadenceWithSlowReads(t *testing.T) {
	hold, clock := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{})

	// every reading eats into the tick instead of adding to it
	source := controltest.NewSource(func(int) (rangefinder.Sample, error) {
		clock.Advance(10 * time.Millisecond)
		return rangefinder.Sample{Distance: 1.0}, nil
	})

	res, err := hold.Run(context.Background(), link, source, 1400, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 60, res.Ticks)

	for _, d := range clock.Sleeps() {
		require.Equal(t, 40*time.Millisecond, d)
	}
}

func TestHold_OverrunSkipsSleep(t *testing.T) {
	hold, clock := newTestHold(t)
	link := armedLink(t, &vehicletest.Link{})

	// one slow read must not be followed by a burst of catch-up ticks
	source := controltest.NewSource(func(i int) (rangefinder.Sample, error) {
		if i == 0 {
			clock.Advance(200 * time.Millisecond)
		}
		return rangefinder.Sample{Distance: 1.0}, nil
	})

	res, err := hold.Run(context.Background(), link, source, 1400, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 57, res.Ticks)

	sleeps := clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Zero(t, sleeps[0])
	for _, d := range sleeps[1:] {
		require.Equal(t, 50*time.Millisecond, d)
	}
}
