// Package mavlink implements vehicle.Link for ArduCopter over MAVLink v2.
package mavlink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/roman-kulish/althold/internal/metrics"
	"github.com/roman-kulish/althold/internal/vehicle"
)

const (
	// forceDisarm is the MAV_CMD_COMPONENT_ARM_DISARM param2 value that disarms in flight
	forceDisarm = 21196

	closeTimeout = 2 * time.Second
)

// WithLogger sets the logger for the link
func WithLogger(logger *slog.Logger) func(l *Link) {
	return func(l *Link) {
		l.logger = logger.With(slog.String("component", "mavlink"))
	}
}

type status struct {
	target          uint8
	targetComponent uint8

	heartbeatAt time.Time
	baseMode    common.MAV_MODE_FLAG
	customMode  uint32

	attitude *vehicle.Attitude
	battery  *vehicle.Battery
}

// Link is a vehicle.Link backed by a gomavlib node. Status is updated by a
// background goroutine that consumes node events.
type Link struct {
	node  *gomavlib.Node
	write func(message.Message)
	cfg   Config

	mu        sync.RWMutex
	status    status
	overrides [vehicle.RCChannels]uint16

	acks      chan *common.MessageCommandAck
	connected chan struct{}
	connOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once

	now    func() time.Time
	logger *slog.Logger
}

func newLink(cfg Config, write func(message.Message), options ...func(l *Link)) *Link {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	l := Link{
		write: write,
		cfg:   cfg,
		status: status{
			target:          cfg.TargetSystem,
			targetComponent: cfg.TargetComponent,
		},
		acks:      make(chan *common.MessageCommandAck, 8),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
		logger:    logger,
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Dial opens the configured endpoint and blocks until the first autopilot
// heartbeat arrives, ctx is done or the connect timeout expires.
func Dial(ctx context.Context, cfg Config, options ...func(l *Link)) (*Link, error) {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{cfg.endpoint()},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: cfg.SystemID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating node: %w", vehicle.ErrLink, err)
	}

	l := newLink(cfg, func(m message.Message) { node.WriteMessageAll(m) }, options...)
	l.node = node

	go l.handleEvents()

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout.Std())
	defer cancel()

	l.logger.Info("waiting for autopilot heartbeat...", slog.String("endpoint", string(cfg.Endpoint)))

	select {
	case <-l.connected:
	case <-ctx.Done():
		_ = l.Close()
		return nil, fmt.Errorf("%w: waiting for autopilot: %w", vehicle.ErrHeartbeatLost, ctx.Err())
	}

	target, component := l.target()
	l.logger.Info("connected to autopilot",
		slog.Int("system", int(target)),
		slog.Int("component", int(component)),
		slog.String("mode", string(l.Mode())),
	)

	return l, nil
}

func (l *Link) handleEvents() {
	defer close(l.done)

	for evt := range l.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventChannelOpen:
			l.logger.Debug("channel open", slog.Any("channel", e.Channel))
		case *gomavlib.EventChannelClose:
			l.logger.Warn("channel closed", slog.Any("channel", e.Channel))
		case *gomavlib.EventFrame:
			l.handleMessage(e.SystemID(), e.ComponentID(), e.Message())
		}
	}
}

func (l *Link) handleMessage(systemID, componentID uint8, msg message.Message) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		// ground stations and companions report MAV_AUTOPILOT_INVALID
		if m.Autopilot == common.MAV_AUTOPILOT_INVALID {
			return
		}

		l.mu.Lock()
		if l.status.target == 0 {
			l.status.target = systemID
			if l.status.targetComponent == 0 {
				l.status.targetComponent = componentID
			}
		}
		if systemID != l.status.target {
			l.mu.Unlock()
			return
		}

		wasArmed := l.status.baseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		isArmed := m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		l.status.heartbeatAt = l.now()
		l.status.baseMode = m.BaseMode
		l.status.customMode = m.CustomMode
		l.mu.Unlock()

		metrics.LinkConnected.Set(1)
		l.connOnce.Do(func() { close(l.connected) })

		if wasArmed != isArmed {
			l.logger.Info("armed state changed", slog.Bool("armed", isArmed))
		}

	case *common.MessageAttitude:
		a := vehicle.Attitude{Roll: float64(m.Roll), Pitch: float64(m.Pitch), Yaw: float64(m.Yaw)}

		l.mu.Lock()
		if systemID == l.status.target {
			l.status.attitude = &a
		}
		l.mu.Unlock()

	case *common.MessageSysStatus:
		b := batteryFromStatus(m)

		l.mu.Lock()
		if systemID == l.status.target {
			l.status.battery = &b
		}
		l.mu.Unlock()

	case *common.MessageCommandAck:
		select {
		case l.acks <- m:
		default:
			l.logger.Debug("dropping unsolicited command ack", slog.Any("command", m.Command))
		}
	}
}

func batteryFromStatus(m *common.MessageSysStatus) vehicle.Battery {
	b := vehicle.Battery{Voltage: -1, Current: -1, Level: int(m.BatteryRemaining)}

	if m.VoltageBattery != math.MaxUint16 {
		b.Voltage = float64(m.VoltageBattery) / 1000.0 // mV
	}

	if m.CurrentBattery >= 0 {
		b.Current = float64(m.CurrentBattery) / 100.0 // cA
	}

	return b
}

func (l *Link) target() (uint8, uint8) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.status.target, l.status.targetComponent
}

// aliveLocked must be called with l.mu held
func (l *Link) aliveLocked() error {
	if l.status.heartbeatAt.IsZero() {
		return fmt.Errorf("%w: no heartbeat received", vehicle.ErrHeartbeatLost)
	}

	if age := l.now().Sub(l.status.heartbeatAt); age > l.cfg.HeartbeatTimeout.Std() {
		metrics.LinkConnected.Set(0)
		return fmt.Errorf("%w: last heartbeat %s ago", vehicle.ErrHeartbeatLost, age.Truncate(time.Millisecond))
	}

	return nil
}

func (l *Link) drainAcks() {
	for {
		select {
		case <-l.acks:
		default:
			return
		}
	}
}

// command sends COMMAND_LONG and waits for the matching COMMAND_ACK
func (l *Link) command(ctx context.Context, cmd common.MAV_CMD, params ...float32) error {
	var p [7]float32
	copy(p[:], params)

	l.drainAcks()

	target, component := l.target()
	l.write(&common.MessageCommandLong{
		TargetSystem:    target,
		TargetComponent: component,
		Command:         cmd,
		Param1:          p[0],
		Param2:          p[1],
		Param3:          p[2],
		Param4:          p[3],
		Param5:          p[4],
		Param6:          p[5],
		Param7:          p[6],
	})

	ctx, cancel := context.WithTimeout(ctx, l.cfg.AckTimeout.Std())
	defer cancel()

	name := fmt.Sprint(cmd)

	for {
		select {
		case ack := <-l.acks:
			if ack.Command != cmd {
				continue
			}

			switch ack.Result {
			case common.MAV_RESULT_ACCEPTED:
				metrics.LinkCommands.WithLabelValues(name, "accepted").Inc()
				return nil
			case common.MAV_RESULT_IN_PROGRESS:
				continue
			}

			metrics.LinkCommands.WithLabelValues(name, "rejected").Inc()
			return fmt.Errorf("%w: %s: %v", vehicle.ErrCommandRejected, name, ack.Result)

		case <-ctx.Done():
			metrics.LinkCommands.WithLabelValues(name, "timeout").Inc()
			return fmt.Errorf("%w: %s: %w", vehicle.ErrAckTimeout, name, ctx.Err())
		}
	}
}

func (l *Link) SetFlightMode(ctx context.Context, mode vehicle.Mode) error {
	custom, ok := customMode(mode)
	if !ok {
		return fmt.Errorf("%w: %q", vehicle.ErrUnknownMode, mode)
	}

	l.logger.Info("setting flight mode", slog.String("mode", string(mode)))

	return l.command(ctx, common.MAV_CMD_DO_SET_MODE,
		float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), float32(custom))
}

// SetArmed arms or disarms the motors. Disarming is forced so that it is
// honoured in flight.
func (l *Link) SetArmed(ctx context.Context, armed bool) error {
	if armed {
		l.logger.Info("arming motors")
		return l.command(ctx, common.MAV_CMD_COMPONENT_ARM_DISARM, 1)
	}

	l.logger.Info("disarming motors")
	return l.command(ctx, common.MAV_CMD_COMPONENT_ARM_DISARM, 0, forceDisarm)
}

func (l *Link) Armed() (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.aliveLocked(); err != nil {
		return false, err
	}

	return l.status.baseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0, nil
}

// Mode returns the last flight mode reported by the autopilot
func (l *Link) Mode() vehicle.Mode {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return modeName(l.status.customMode)
}

// OverrideChannel sends RC_CHANNELS_OVERRIDE carrying every channel currently
// overridden. The message is sent even when the heartbeat is stale; the
// staleness is reported through the returned error.
func (l *Link) OverrideChannel(channel int, value int) error {
	if channel < 1 || channel > vehicle.RCChannels {
		return fmt.Errorf("%w: %d", vehicle.ErrInvalidChannel, channel)
	}

	if value < 0 || value > math.MaxUint16 {
		return fmt.Errorf("%w: channel %d value %d out of range", vehicle.ErrLink, channel, value)
	}

	l.mu.Lock()
	l.overrides[channel-1] = uint16(value)
	msg := l.overrideMessageLocked()
	err := l.aliveLocked()
	l.mu.Unlock()

	l.write(msg)

	return err
}

func (l *Link) overrideMessageLocked() *common.MessageRcChannelsOverride {
	o := l.overrides

	return &common.MessageRcChannelsOverride{
		TargetSystem:    l.status.target,
		TargetComponent: l.status.targetComponent,
		Chan1Raw:        o[0],
		Chan2Raw:        o[1],
		Chan3Raw:        o[2],
		Chan4Raw:        o[3],
		Chan5Raw:        o[4],
		Chan6Raw:        o[5],
		Chan7Raw:        o[6],
		Chan8Raw:        o[7],
	}
}

func (l *Link) Attitude() (vehicle.Attitude, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.status.attitude == nil {
		return vehicle.Attitude{}, fmt.Errorf("%w: no attitude received", vehicle.ErrLink)
	}

	return *l.status.attitude, nil
}

func (l *Link) Battery() (vehicle.Battery, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.status.battery == nil {
		return vehicle.Battery{}, fmt.Errorf("%w: no battery status received", vehicle.ErrLink)
	}

	return *l.status.battery, nil
}

// Close releases all RC overrides and closes the node
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.overrides = [vehicle.RCChannels]uint16{}
		msg := l.overrideMessageLocked()
		l.mu.Unlock()

		l.write(msg)

		if l.node == nil {
			return
		}

		l.node.Close()

		select {
		case <-l.done:
		case <-time.After(closeTimeout):
			l.logger.Warn("timed out waiting for the event loop to stop")
		}

		metrics.LinkConnected.Set(0)
	})

	return nil
}
