package vehicle

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampThrottle(t *testing.T) {
	assert.Equal(t, MinThrottle, ClampThrottle(0))
	assert.Equal(t, MinThrottle, ClampThrottle(-5))
	assert.Equal(t, 1500, ClampThrottle(1500))
	assert.Equal(t, MaxThrottle, ClampThrottle(2500))
	assert.Equal(t, MaxThrottle, ClampThrottle(MaxThrottle))
}

func TestClampThrottle_RandomSteps(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 11))

	v := 1500
	for range 10_000 {
		v = ClampThrottle(v + rnd.IntN(401) - 200)
		if v < MinThrottle || v > MaxThrottle {
			t.Fatalf("throttle %d out of range", v)
		}
	}
}

func TestLinkErrors(t *testing.T) {
	for _, err := range []error{ErrCommandRejected, ErrAckTimeout, ErrHeartbeatLost, ErrUnknownMode, ErrInvalidChannel} {
		assert.True(t, errors.Is(err, ErrLink), err.Error())
	}
}
