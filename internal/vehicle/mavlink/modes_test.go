package mavlink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roman-kulish/althold/internal/vehicle"
)

func TestCopterModes(t *testing.T) {
	for mode := range copterModes {
		custom, ok := customMode(mode)
		assert.True(t, ok)
		assert.Equal(t, mode, modeName(custom))
	}

	_, ok := customMode("HOVER")
	assert.False(t, ok)
	assert.Equal(t, vehicle.Mode(""), modeName(99))
}
