package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromCLI(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-db", "flightlog.sqlite", "-m", "3", "-o", "out", "-f", "JPG", "-phase", "hold", "-tz", "UTC"})
	require.NoError(t, err)

	assert.Equal(t, "flightlog.sqlite", c.DBPath)
	assert.Equal(t, int64(3), c.MissionID)
	assert.Equal(t, "out.jpeg", c.OutputFile)
	assert.Equal(t, ImageJPEG, c.Format)
	assert.Equal(t, "hold", c.Phase)
	assert.Equal(t, "UTC", c.TimeZone.String())
	assert.Equal(t, 1200, c.Width)
}

func TestNewConfigFromCLI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no db", args: []string{"-m", "1", "-o", "out"}},
		{name: "no mission", args: []string{"-db", "x", "-o", "out"}},
		{name: "no output", args: []string{"-db", "x", "-m", "1"}},
		{name: "bad format", args: []string{"-db", "x", "-m", "1", "-o", "out", "-f", "gif"}},
		{name: "bad phase", args: []string{"-db", "x", "-m", "1", "-o", "out", "-phase", "landing"}},
		{name: "too small", args: []string{"-db", "x", "-m", "1", "-o", "out", "-width", "10"}},
		{name: "bad zone", args: []string{"-db", "x", "-m", "1", "-o", "out", "-tz", "Mars/Olympus"}},
		{name: "unknown flag", args: []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigFromCLI(tt.args)
			assert.Error(t, err)
		})
	}
}
