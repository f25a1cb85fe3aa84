package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rangefinder
	RangefinderSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "althold_rangefinder_samples_total",
			Help: "Total number of rangefinder reads by result",
		},
		[]string{"result"},
	)

	RangefinderDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "althold_rangefinder_decode_errors_total",
			Help: "Total number of discarded rangefinder bytes runs that did not form a frame",
		},
	)

	Altitude = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "althold_altitude_meters",
			Help: "Last valid rangefinder altitude in meters",
		},
	)

	// Control loops
	ThrottleCommand = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "althold_throttle_command",
			Help: "Last throttle PWM value written to the flight controller",
		},
	)

	ControlIterationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "althold_control_iteration_duration_seconds",
			Help:    "Duration of one control loop iteration excluding the cadence sleep",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"phase"},
	)

	FailsafeTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "althold_failsafe_trips_total",
			Help: "Total number of failsafe aborts by phase and verdict",
		},
		[]string{"phase", "verdict"},
	)

	// Mission
	MissionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "althold_mission_state",
			Help: "Current mission state (1 = active state)",
		},
		[]string{"state"},
	)

	MissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "althold_mission_outcomes_total",
			Help: "Total number of finished missions by outcome",
		},
		[]string{"outcome"},
	)

	// Flight controller link
	LinkCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "althold_link_commands_total",
			Help: "Total number of commands sent to the flight controller by result",
		},
		[]string{"command", "result"},
	)

	LinkConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "althold_link_connected",
			Help: "Flight controller heartbeat status (1 = alive, 0 = lost)",
		},
	)

	// Flight log
	RecorderDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "althold_recorder_dropped_total",
			Help: "Total number of flight log records dropped because the queue was full",
		},
	)
)

// SetMissionState marks state as the only active mission state
func SetMissionState(state string) {
	MissionState.Reset()
	MissionState.WithLabelValues(state).Set(1)
}
