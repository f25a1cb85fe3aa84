package telemetry

import (
	"time"
)

// Telemetry is a point-in-time view of the flight. Nil fields were not known
// when the snapshot was taken.
type Telemetry struct {
	Timestamp   time.Time `json:"timestamp"`             // Time of the last update
	State       string    `json:"state"`                 // Mission state
	Phase       string    `json:"phase,omitempty"`       // Control loop producing the values
	Armed       *bool     `json:"armed,omitempty"`       // Last armed flag polled from the vehicle
	Altitude    *float64  `json:"altitude,omitempty"`    // Rangefinder distance in meters
	Strength    *int64    `json:"strength,omitempty"`    // Rangefinder signal strength
	Temperature *float64  `json:"temperature,omitempty"` // Rangefinder chip temperature in °C
	Throttle    *int64    `json:"throttle,omitempty"`    // Last throttle PWM written
	Roll        *float64  `json:"roll,omitempty"`        // Roll angle in radians
	Pitch       *float64  `json:"pitch,omitempty"`       // Pitch angle in radians
	Yaw         *float64  `json:"yaw,omitempty"`         // Yaw angle in radians
	Voltage     *float64  `json:"voltage,omitempty"`     // Battery voltage in volts
	Current     *float64  `json:"current,omitempty"`     // Battery current in amperes
	Battery     *int64    `json:"battery,omitempty"`     // Battery remaining in percent
}

// Record is one control loop iteration as written to the flight log
type Record struct {
	Timestamp   time.Time
	Phase       string
	State       string
	Altitude    *float64 // nil when the reading was invalid
	Strength    *int64
	Temperature *float64
	Throttle    int
	Verdict     string
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
