package mavlink

import (
	"time"

	"github.com/bluenviron/gomavlib/v3"

	"github.com/roman-kulish/althold/internal/config"
)

// EndpointType selects the transport used to reach the flight controller
type EndpointType string

const (
	EndpointSerial    EndpointType = "serial"
	EndpointUDPClient EndpointType = "udp"
	EndpointUDPServer EndpointType = "udpServer"
	EndpointTCPClient EndpointType = "tcp"
)

// Config is the flight controller link configuration
type Config struct {
	Endpoint EndpointType `yaml:"endpoint"`
	Device   string       `yaml:"device"`   // serial device, e.g. /dev/ttyAMA0
	BaudRate int          `yaml:"baudRate"` // serial only
	Address  string       `yaml:"address"`  // host:port for network endpoints

	SystemID uint8 `yaml:"systemID"` // our own system ID, 255 is the usual GCS ID

	// TargetSystem is the autopilot system ID. Zero adopts the first autopilot heard.
	TargetSystem    uint8 `yaml:"targetSystem"`
	TargetComponent uint8 `yaml:"targetComponent"`

	ConnectTimeout   config.Duration `yaml:"connectTimeout"`
	AckTimeout       config.Duration `yaml:"ackTimeout"`
	HeartbeatTimeout config.Duration `yaml:"heartbeatTimeout"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint:         EndpointSerial,
		Device:           "/dev/ttyAMA0",
		BaudRate:         921600,
		SystemID:         255,
		TargetComponent:  1,
		ConnectTimeout:   config.NewDuration(30 * time.Second),
		AckTimeout:       config.NewDuration(3 * time.Second),
		HeartbeatTimeout: config.NewDuration(3 * time.Second),
	}
}

func (c *Config) Validate() error {
	switch c.Endpoint {
	case EndpointSerial:
		if c.Device == "" {
			return config.NewError("mavlink.Config", "device is required for the serial endpoint")
		}
		if c.BaudRate <= 0 {
			return config.NewError("mavlink.Config", "baud rate must be positive: %d given", c.BaudRate)
		}
	case EndpointUDPClient, EndpointUDPServer, EndpointTCPClient:
		if c.Address == "" {
			return config.NewError("mavlink.Config", "address is required for the %s endpoint", c.Endpoint)
		}
	default:
		return config.NewError("mavlink.Config", "unsupported endpoint %q", c.Endpoint)
	}

	if c.SystemID == 0 {
		return config.NewError("mavlink.Config", "system ID must not be zero")
	}

	if c.ConnectTimeout <= 0 || c.AckTimeout <= 0 || c.HeartbeatTimeout <= 0 {
		return config.NewError("mavlink.Config", "connect, ack and heartbeat timeouts must be positive")
	}

	return nil
}

func (c *Config) endpoint() gomavlib.EndpointConf {
	switch c.Endpoint {
	case EndpointUDPClient:
		return gomavlib.EndpointUDPClient{Address: c.Address}
	case EndpointUDPServer:
		return gomavlib.EndpointUDPServer{Address: c.Address}
	case EndpointTCPClient:
		return gomavlib.EndpointTCPClient{Address: c.Address}
	}

	return gomavlib.EndpointSerial{Device: c.Device, Baud: c.BaudRate}
}
