package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/althold/internal/control"
	"github.com/roman-kulish/althold/internal/failsafe"
	"github.com/roman-kulish/althold/internal/mission"
	"github.com/roman-kulish/althold/internal/rangefinder"
	"github.com/roman-kulish/althold/internal/vehicle/mavlink"
)

// Config represents the main application configuration
type Config struct {
	Settings    Settings           `yaml:"settings"`
	Rangefinder rangefinder.Config `yaml:"rangefinder"`
	Link        mavlink.Config     `yaml:"link"`
	Mission     mission.Config     `yaml:"mission"`
	Control     control.Config     `yaml:"control"`
	Failsafe    failsafe.Config    `yaml:"failsafe"`
	Storage     StorageConfig      `yaml:"storage"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
}

// StorageConfig represents flight log settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	FileName      string `yaml:"fileName"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// MetricsConfig represents the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns the configuration used for keys missing from the file
func DefaultConfig() *Config {
	return &Config{
		Settings:    Settings{LogLevel: slog.LevelInfo},
		Rangefinder: rangefinder.DefaultConfig(),
		Link:        mavlink.DefaultConfig(),
		Mission:     mission.DefaultConfig(),
		Control:     control.DefaultConfig(),
		Failsafe:    failsafe.DefaultConfig(),
		Storage: StorageConfig{
			Enabled:       true,
			DataDirectory: "data",
			FileName:      "flightlog.sqlite",
			MaxBatchSize:  64,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9100",
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults and validates it
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks every section and returns all problems found
func (c *Config) Validate() error {
	errs := []error{
		c.Rangefinder.Validate(),
		c.Link.Validate(),
		c.Mission.Validate(),
		c.Control.Validate(),
		c.Failsafe.Validate(),
	}

	if c.Storage.Enabled {
		if c.Storage.FileName == "" {
			errs = append(errs, errors.New("app.StorageConfig: file name is required"))
		}
		if c.Storage.MaxBatchSize <= 0 {
			errs = append(errs, fmt.Errorf("app.StorageConfig: max batch size must be positive: %d given", c.Storage.MaxBatchSize))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("app.MetricsConfig: address is required"))
	}

	return errors.Join(errs...)
}
