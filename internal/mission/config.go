package mission

import (
	"time"

	"github.com/roman-kulish/althold/internal/config"
	"github.com/roman-kulish/althold/internal/vehicle"
)

type Config struct {
	TargetAltitude float64      `yaml:"targetAltitude"` // meters
	PreArmMode     vehicle.Mode `yaml:"preArmMode"`
	LandMode       vehicle.Mode `yaml:"landMode"`

	ArmPollInterval    config.Duration `yaml:"armPollInterval"`
	ArmDiagnosticEvery int             `yaml:"armDiagnosticEvery"` // polls between "still arming" logs
	ArmTimeout         config.Duration `yaml:"armTimeout"`

	LandDelay config.Duration `yaml:"landDelay"` // pause between hold and the landing command
}

func DefaultConfig() Config {
	return Config{
		TargetAltitude:     1.0,
		PreArmMode:         vehicle.ModeStabilize,
		LandMode:           vehicle.ModeLand,
		ArmPollInterval:    config.NewDuration(time.Second),
		ArmDiagnosticEvery: 5,
		ArmTimeout:         config.NewDuration(30 * time.Second),
		LandDelay:          config.NewDuration(time.Second),
	}
}

func (c *Config) Validate() error {
	if c.TargetAltitude <= 0 {
		return config.NewError("mission.Config", "target altitude must be positive: %g given", c.TargetAltitude)
	}

	if c.PreArmMode == "" || c.LandMode == "" {
		return config.NewError("mission.Config", "pre-arm and land modes are required")
	}

	if c.ArmPollInterval <= 0 {
		return config.NewError("mission.Config", "arm poll interval must be positive: %s given", c.ArmPollInterval)
	}

	if c.ArmDiagnosticEvery <= 0 {
		return config.NewError("mission.Config", "arm diagnostic interval must be positive: %d given", c.ArmDiagnosticEvery)
	}

	if c.ArmTimeout < c.ArmPollInterval {
		return config.NewError("mission.Config", "arm timeout %s must not be shorter than the poll interval %s", c.ArmTimeout, c.ArmPollInterval)
	}

	if c.LandDelay < 0 {
		return config.NewError("mission.Config", "land delay must not be negative: %s given", c.LandDelay)
	}

	return nil
}
