package rangefinder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	frameOneMeter = []byte{0x59, 0x59, 0x64, 0x00, 0x0A, 0x00, 0x40, 0x08, 0x00}
	frameTwoMeter = []byte{0x59, 0x59, 0xC8, 0x00, 0x0A, 0x00, 0x40, 0x08, 0x00}

	// 0.89 m is 0x59 cm, so the distance low byte looks like a third sync byte
	frameSyncDistance = []byte{0x59, 0x59, 0x59, 0x00, 0x0A, 0x00, 0x40, 0x08, 0x00}
)

// fakePort returns one queued chunk per Read. When the queue is empty it
// advances the fake clock and returns nothing, like a serial read timeout.
type fakePort struct {
	chunks  [][]byte
	readErr error

	resets   int
	resetErr error

	now  time.Time
	idle time.Duration
}

func newFakePort(chunks ...[]byte) *fakePort {
	return &fakePort{chunks: chunks, now: time.Unix(1700000000, 0), idle: 20 * time.Millisecond}
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		p.now = p.now.Add(p.idle)
		return 0, nil
	}

	n := copy(b, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}

	return n, nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.resets++
	return p.resetErr
}

func (p *fakePort) clock() time.Time {
	return p.now
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestReader_Next(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
		want   float64
	}{
		{
			name:   "aligned frame",
			chunks: [][]byte{frameOneMeter},
			want:   1.0,
		},
		{
			name:   "garbage before sync",
			chunks: [][]byte{concat([]byte{0xAA, 0xBB, 0x00}, frameOneMeter)},
			want:   1.0,
		},
		{
			name:   "frame split across reads",
			chunks: [][]byte{frameTwoMeter[:4], frameTwoMeter[4:]},
			want:   2.0,
		},
		{
			name:   "sync marker split across reads",
			chunks: [][]byte{{0x01, 0x02, 0x59}, frameTwoMeter[1:]},
			want:   2.0,
		},
		{
			name:   "lone sync byte followed by frame",
			chunks: [][]byte{{0x59, 0x00}, frameOneMeter},
			want:   1.0,
		},
		{
			name:   "stray sync byte directly before frame",
			chunks: [][]byte{concat([]byte{0x59}, frameOneMeter)},
			want:   1.0,
		},
		{
			name:   "stray sync byte before frame split across reads",
			chunks: [][]byte{{0x59, 0x59, 0x59, 0x64, 0x00}, {0x0A, 0x00, 0x40, 0x08}, {0x00}},
			want:   1.0,
		},
		{
			name:   "distance low byte equal to sync byte",
			chunks: [][]byte{frameSyncDistance},
			want:   0.89,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := newFakePort(tt.chunks...)
			r := NewReader(port, WithNow(port.clock))

			got, err := r.Next(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Distance, 1e-9)
			assert.Equal(t, 1, port.resets)
		})
	}
}

func TestReader_NextDropsStaleInput(t *testing.T) {
	port := newFakePort(concat(frameOneMeter, frameTwoMeter), frameOneMeter)
	r := NewReader(port, WithNow(port.clock))

	first, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, first.Distance, 1e-9)

	// the buffered 2 m frame predates the reset and must not be returned
	second, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, second.Distance, 1e-9)
	assert.Equal(t, 2, port.resets)
}

func TestReader_NextChecksum(t *testing.T) {
	good := append([]byte(nil), frameTwoMeter...)
	good[8] = Checksum(good)

	port := newFakePort(concat(frameOneMeter, good))
	r := NewReader(port, WithNow(port.clock), WithChecksum())

	// the 1 m frame carries a zero checksum byte and is skipped
	got, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.Distance, 1e-9)
}

func TestReader_NextChecksumStraySync(t *testing.T) {
	good := append([]byte(nil), frameSyncDistance...)
	good[8] = Checksum(good)

	port := newFakePort(concat([]byte{0x59}, good))
	r := NewReader(port, WithNow(port.clock), WithChecksum())

	got, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.89, got.Distance, 1e-9)
}

func TestReader_NextTimeout(t *testing.T) {
	port := newFakePort([]byte{0x00, 0x01, 0x02})
	r := NewReader(port, WithNow(port.clock), WithFrameTimeout(100*time.Millisecond))

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoSample)
	assert.Zero(t, port.resets)
}

func TestReader_NextTransportError(t *testing.T) {
	port := newFakePort(frameOneMeter[:5])
	port.readErr = errors.New("device unplugged")
	r := NewReader(port, WithNow(port.clock))

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorContains(t, err, "device unplugged")
}

func TestReader_NextResetError(t *testing.T) {
	port := newFakePort(frameOneMeter)
	port.resetErr = errors.New("ioctl failed")
	r := NewReader(port, WithNow(port.clock))

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestReader_NextCancelled(t *testing.T) {
	port := newFakePort(frameOneMeter)
	r := NewReader(port, WithNow(port.clock))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_Samples(t *testing.T) {
	port := newFakePort(frameOneMeter)
	r := NewReader(port, WithNow(port.clock), WithFrameTimeout(50*time.Millisecond))

	var (
		distances []float64
		errs      []error
	)

	// after the first frame the port stays silent; stop after two lost readings
	for s, err := range r.Samples(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			if len(errs) == 2 {
				break
			}
			continue
		}
		distances = append(distances, s.Distance)
	}

	assert.Equal(t, []float64{1.0}, distances)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrNoSample)
	}

	for _, err := range r.Samples(context.Background()) {
		assert.ErrorIs(t, err, ErrStreamConsumed)
	}
}

func TestReader_SamplesStopsOnTransportError(t *testing.T) {
	port := newFakePort(frameOneMeter)
	port.readErr = errors.New("closed")
	r := NewReader(port, WithNow(port.clock))

	var n int
	var last error
	for _, err := range r.Samples(context.Background()) {
		n++
		last = err
	}

	assert.Equal(t, 2, n)
	assert.ErrorIs(t, last, ErrTransport)
}
