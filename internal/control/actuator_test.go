package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/althold/internal/vehicle"
	"github.com/roman-kulish/althold/internal/vehicle/vehicletest"
)

func TestActuator_WriteThrottleClamps(t *testing.T) {
	a := NewActuator(DefaultConfig())
	link := &vehicletest.Link{}

	v, err := a.WriteThrottle(link, 2400)
	require.NoError(t, err)
	assert.Equal(t, vehicle.MaxThrottle, v)

	v, err = a.WriteThrottle(link, 900)
	require.NoError(t, err)
	assert.Equal(t, vehicle.MinThrottle, v)

	assert.Equal(t, []int{vehicle.MaxThrottle, vehicle.MinThrottle}, link.Throttle())
}

func TestActuator_AbortIdempotent(t *testing.T) {
	a := NewActuator(DefaultConfig())
	link := &vehicletest.Link{}
	require.NoError(t, link.SetArmed(context.Background(), true))
	armed, err := link.Armed()
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, a.Abort(context.Background(), link))
	require.NoError(t, a.Abort(context.Background(), link))

	assert.Equal(t, []int{vehicle.MinThrottle, vehicle.MinThrottle}, link.Throttle())
	assert.False(t, link.IsArmed())
}

func TestActuator_AbortActions(t *testing.T) {
	tests := []struct {
		action AbortAction
		want   []string
	}{
		{AbortDisarm, []string{"rc3 1000", "disarm"}},
		{AbortLand, []string{"rc3 1000", "mode LAND"}},
		{AbortDisarmAndLand, []string{"rc3 1000", "mode LAND", "disarm"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			link := &vehicletest.Link{}
			a := Actuator{Channel: vehicle.ThrottleChannel, Action: tt.action}

			require.NoError(t, a.Abort(context.Background(), link))
			assert.Equal(t, tt.want, link.Calls())
		})
	}
}

func TestActuator_AbortAttemptsEveryStep(t *testing.T) {
	errOverride := errors.New("serial write failed")
	link := &vehicletest.Link{
		OverrideErr: errOverride,
		ModeErrors:  map[vehicle.Mode]error{vehicle.ModeLand: vehicle.ErrCommandRejected},
		DisarmErr:   vehicle.ErrAckTimeout,
	}
	a := Actuator{Channel: vehicle.ThrottleChannel, Action: AbortDisarmAndLand}

	err := a.Abort(context.Background(), link)

	assert.ErrorIs(t, err, errOverride)
	assert.ErrorIs(t, err, vehicle.ErrCommandRejected)
	assert.ErrorIs(t, err, vehicle.ErrAckTimeout)
	assert.Equal(t, []string{"rc3 1000", "mode LAND", "disarm"}, link.Calls())
}

func TestConfig_Validate(t *testing.T) {
	c := DefaultConfig()
	assert.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"channel zero", func(c *Config) { c.ThrottleChannel = 0 }},
		{"unknown abort action", func(c *Config) { c.AbortAction = "eject" }},
		{"initial throttle too low", func(c *Config) { c.Takeoff.InitialThrottle = 900 }},
		{"zero takeoff step", func(c *Config) { c.Takeoff.Step = 0 }},
		{"reach fraction above one", func(c *Config) { c.Takeoff.ReachFraction = 1.2 }},
		{"zero hover band", func(c *Config) { c.Takeoff.HoverBand = 0 }},
		{"no takeoff mode", func(c *Config) { c.Takeoff.Mode = "" }},
		{"zero hold duration", func(c *Config) { c.Hold.Duration = 0 }},
		{"inverted hold range", func(c *Config) { c.Hold.MinThrottle = 1900; c.Hold.MaxThrottle = 1100 }},
		{"hold ceiling above max", func(c *Config) { c.Hold.MaxThrottle = 2100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
