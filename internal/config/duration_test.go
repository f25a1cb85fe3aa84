package config

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_YAML(t *testing.T) {
	var v struct {
		Cadence Duration `yaml:"cadence"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("cadence: 200ms\n"), &v))
	assert.Equal(t, 200*time.Millisecond, v.Cadence.Std())

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "cadence: 200ms\n", string(out))

	err = yaml.Unmarshal([]byte("cadence: fast\n"), &v)
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	d := NewDuration(3 * time.Second)

	p, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"3s"`, string(p))

	var back Duration
	require.NoError(t, json.Unmarshal(p, &back))
	assert.Equal(t, d, back)

	assert.Error(t, json.Unmarshal([]byte(`"3 parsecs"`), &back))
	assert.Error(t, json.Unmarshal([]byte(`3`), &back))
}

func TestError(t *testing.T) {
	var err error = NewError("failsafe.Config", "timeout must be positive: %s", time.Duration(0))

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "failsafe.Config", cfgErr.Section())
	assert.Equal(t, "failsafe.Config: timeout must be positive: 0s", err.Error())
}
