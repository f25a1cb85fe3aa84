package mavlink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/althold/internal/config"
	"github.com/roman-kulish/althold/internal/vehicle"
)

type sentMessages struct {
	mu   sync.Mutex
	msgs []message.Message
	sent chan message.Message
}

func (s *sentMessages) write(m message.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()

	select {
	case s.sent <- m:
	default:
	}
}

func (s *sentMessages) last() message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.msgs) == 0 {
		return nil
	}
	return s.msgs[len(s.msgs)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLink(t *testing.T) (*Link, *sentMessages, *testClock) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AckTimeout = config.NewDuration(100 * time.Millisecond)

	sent := &sentMessages{sent: make(chan message.Message, 16)}
	clock := &testClock{now: time.Unix(1700000000, 0)}

	l := newLink(cfg, sent.write, func(l *Link) { l.now = clock.Now })
	return l, sent, clock
}

func heartbeat(armed bool, custom uint32) *common.MessageHeartbeat {
	mode := common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED
	if armed {
		mode |= common.MAV_MODE_FLAG_SAFETY_ARMED
	}

	return &common.MessageHeartbeat{
		Type:       common.MAV_TYPE_QUADROTOR,
		Autopilot:  common.MAV_AUTOPILOT_ARDUPILOTMEGA,
		BaseMode:   mode,
		CustomMode: custom,
	}
}

func TestLink_HeartbeatTracking(t *testing.T) {
	l, _, clock := newTestLink(t)

	_, err := l.Armed()
	assert.ErrorIs(t, err, vehicle.ErrHeartbeatLost)

	// ground station heartbeats do not count
	l.handleMessage(7, 190, &common.MessageHeartbeat{Type: common.MAV_TYPE_GCS, Autopilot: common.MAV_AUTOPILOT_INVALID})
	_, err = l.Armed()
	assert.ErrorIs(t, err, vehicle.ErrHeartbeatLost)

	l.handleMessage(1, 1, heartbeat(false, 0))
	armed, err := l.Armed()
	require.NoError(t, err)
	assert.False(t, armed)
	assert.Equal(t, vehicle.ModeStabilize, l.Mode())

	select {
	case <-l.connected:
	default:
		t.Fatal("first autopilot heartbeat must mark the link connected")
	}

	l.handleMessage(1, 1, heartbeat(true, 2))
	armed, err = l.Armed()
	require.NoError(t, err)
	assert.True(t, armed)
	assert.Equal(t, vehicle.ModeAltHold, l.Mode())

	// another autopilot on the same network is ignored
	l.handleMessage(2, 1, heartbeat(false, 9))
	armed, err = l.Armed()
	require.NoError(t, err)
	assert.True(t, armed)

	clock.Advance(4 * time.Second)
	_, err = l.Armed()
	assert.ErrorIs(t, err, vehicle.ErrHeartbeatLost)
}

func TestLink_Telemetry(t *testing.T) {
	l, _, _ := newTestLink(t)

	_, err := l.Attitude()
	assert.ErrorIs(t, err, vehicle.ErrLink)
	_, err = l.Battery()
	assert.ErrorIs(t, err, vehicle.ErrLink)

	l.handleMessage(1, 1, heartbeat(false, 0))
	l.handleMessage(1, 1, &common.MessageAttitude{Roll: 0.1, Pitch: -0.2, Yaw: 1.5})
	l.handleMessage(1, 1, &common.MessageSysStatus{VoltageBattery: 12600, CurrentBattery: 1520, BatteryRemaining: 87})

	a, err := l.Attitude()
	require.NoError(t, err)
	assert.InDelta(t, 0.1, a.Roll, 1e-6)
	assert.InDelta(t, -0.2, a.Pitch, 1e-6)
	assert.InDelta(t, 1.5, a.Yaw, 1e-6)

	b, err := l.Battery()
	require.NoError(t, err)
	assert.InDelta(t, 12.6, b.Voltage, 1e-9)
	assert.InDelta(t, 15.2, b.Current, 1e-9)
	assert.Equal(t, 87, b.Level)
}

func TestBatteryFromStatus_Unknown(t *testing.T) {
	b := batteryFromStatus(&common.MessageSysStatus{VoltageBattery: 65535, CurrentBattery: -1, BatteryRemaining: -1})
	assert.Equal(t, vehicle.Battery{Voltage: -1, Current: -1, Level: -1}, b)
}

func TestLink_OverrideChannel(t *testing.T) {
	l, sent, _ := newTestLink(t)
	l.handleMessage(1, 1, heartbeat(true, 2))

	require.NoError(t, l.OverrideChannel(vehicle.ThrottleChannel, 1300))

	msg, ok := sent.last().(*common.MessageRcChannelsOverride)
	require.True(t, ok)
	assert.Equal(t, uint8(1), msg.TargetSystem)
	assert.Equal(t, uint16(1300), msg.Chan3Raw)
	assert.Zero(t, msg.Chan1Raw)

	assert.ErrorIs(t, l.OverrideChannel(0, 1300), vehicle.ErrInvalidChannel)
	assert.ErrorIs(t, l.OverrideChannel(9, 1300), vehicle.ErrInvalidChannel)
	assert.ErrorIs(t, l.OverrideChannel(3, -1), vehicle.ErrLink)

	require.NoError(t, l.Close())
	msg, ok = sent.last().(*common.MessageRcChannelsOverride)
	require.True(t, ok)
	assert.Zero(t, msg.Chan3Raw)
}

func TestLink_OverrideChannelStaleHeartbeat(t *testing.T) {
	l, sent, clock := newTestLink(t)
	l.handleMessage(1, 1, heartbeat(true, 2))
	clock.Advance(10 * time.Second)

	err := l.OverrideChannel(vehicle.ThrottleChannel, vehicle.MinThrottle)
	assert.ErrorIs(t, err, vehicle.ErrHeartbeatLost)

	// still sent
	msg, ok := sent.last().(*common.MessageRcChannelsOverride)
	require.True(t, ok)
	assert.Equal(t, uint16(vehicle.MinThrottle), msg.Chan3Raw)
}

// acknowledge answers every COMMAND_LONG written by the link
func acknowledge(l *Link, sent *sentMessages, result common.MAV_RESULT) {
	go func() {
		for m := range sent.sent {
			if cmd, ok := m.(*common.MessageCommandLong); ok {
				l.handleMessage(1, 1, &common.MessageCommandAck{Command: cmd.Command, Result: result})
			}
		}
	}()
}

func TestLink_SetFlightMode(t *testing.T) {
	l, sent, _ := newTestLink(t)
	l.handleMessage(1, 1, heartbeat(false, 0))
	acknowledge(l, sent, common.MAV_RESULT_ACCEPTED)
	defer close(sent.sent)

	require.NoError(t, l.SetFlightMode(context.Background(), vehicle.ModeLand))

	var cmd *common.MessageCommandLong
	sent.mu.Lock()
	for _, m := range sent.msgs {
		if c, ok := m.(*common.MessageCommandLong); ok {
			cmd = c
		}
	}
	sent.mu.Unlock()

	require.NotNil(t, cmd)
	assert.Equal(t, common.MAV_CMD_DO_SET_MODE, cmd.Command)
	assert.Equal(t, float32(9), cmd.Param2)

	assert.ErrorIs(t, l.SetFlightMode(context.Background(), "HOVER"), vehicle.ErrUnknownMode)
}

func TestLink_SetArmedRejected(t *testing.T) {
	l, sent, _ := newTestLink(t)
	l.handleMessage(1, 1, heartbeat(false, 0))
	acknowledge(l, sent, common.MAV_RESULT_DENIED)
	defer close(sent.sent)

	err := l.SetArmed(context.Background(), true)
	assert.ErrorIs(t, err, vehicle.ErrCommandRejected)
}

func TestLink_CommandAckTimeout(t *testing.T) {
	l, _, _ := newTestLink(t)
	l.handleMessage(1, 1, heartbeat(false, 0))

	err := l.SetArmed(context.Background(), false)
	assert.ErrorIs(t, err, vehicle.ErrAckTimeout)
	assert.ErrorIs(t, err, vehicle.ErrLink)
}

func TestConfig_Validate(t *testing.T) {
	c := DefaultConfig()
	assert.NoError(t, c.Validate())

	udp := DefaultConfig()
	udp.Endpoint = EndpointUDPClient
	assert.Error(t, udp.Validate())
	udp.Address = "127.0.0.1:14550"
	assert.NoError(t, udp.Validate())

	bad := DefaultConfig()
	bad.Endpoint = "carrier-pigeon"
	assert.Error(t, bad.Validate())

	noID := DefaultConfig()
	noID.SystemID = 0
	assert.Error(t, noID.Validate())
}
