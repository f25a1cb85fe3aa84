package rangefinder

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/roman-kulish/althold/internal/config"
)

// Config is the rangefinder serial port configuration
type Config struct {
	Port         string          `yaml:"port"`
	BaudRate     int             `yaml:"baudRate"`
	ReadTimeout  config.Duration `yaml:"readTimeout"`
	FrameTimeout config.Duration `yaml:"frameTimeout"`
	Checksum     bool            `yaml:"checksum"` // skip frames failing the checksum
}

// DefaultConfig returns the TF-Luna factory settings on the Raspberry Pi UART
func DefaultConfig() Config {
	return Config{
		Port:         "/dev/serial0",
		BaudRate:     115200,
		ReadTimeout:  config.NewDuration(20 * time.Millisecond),
		FrameTimeout: config.NewDuration(DefaultFrameTimeout),
	}
}

// ReaderOptions returns the Reader options matching the configuration
func (c *Config) ReaderOptions() []func(r *Reader) {
	options := []func(r *Reader){WithFrameTimeout(c.FrameTimeout.Std())}
	if c.Checksum {
		options = append(options, WithChecksum())
	}
	return options
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return config.NewError("rangefinder.Config", "port is required")
	}

	if c.BaudRate <= 0 {
		return config.NewError("rangefinder.Config", "baud rate must be positive: %d given", c.BaudRate)
	}

	if c.ReadTimeout <= 0 {
		return config.NewError("rangefinder.Config", "read timeout must be positive: %s given", c.ReadTimeout)
	}

	if c.FrameTimeout < c.ReadTimeout {
		return config.NewError("rangefinder.Config", "frame timeout %s must not be shorter than read timeout %s", c.FrameTimeout, c.ReadTimeout)
	}

	return nil
}

// OpenSerial opens the port as 8N1. A finite read timeout keeps Reader.Next able
// to observe its frame timeout on a silent line.
func OpenSerial(c Config) (serial.Port, error) {
	port, err := serial.Open(c.Port, &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrTransport, c.Port, err)
	}

	if err = port.SetReadTimeout(c.ReadTimeout.Std()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: setting read timeout on %s: %w", ErrTransport, c.Port, err)
	}

	if err = port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: resetting input buffer on %s: %w", ErrTransport, c.Port, err)
	}

	return port, nil
}
