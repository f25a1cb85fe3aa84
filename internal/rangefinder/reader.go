package rangefinder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/althold/internal/metrics"
)

const (
	// DefaultFrameTimeout is how long Next waits for a complete frame before reporting sensor loss
	DefaultFrameTimeout = 100 * time.Millisecond

	readChunkSize = 64

	// maxDistanceCM bounds plausible readings. TF-Luna is rated to 8 m and
	// reports at most a few meters more on strong targets.
	maxDistanceCM = 1200
)

var (
	// ErrNoSample is returned when no valid frame arrived within the frame timeout.
	// Callers treat it as a sensor loss reading.
	ErrNoSample = errors.New("no valid rangefinder sample")

	// ErrTransport is returned when the underlying port fails
	ErrTransport = errors.New("rangefinder transport error")

	// ErrStreamConsumed is yielded when Samples is iterated more than once
	ErrStreamConsumed = errors.New("rangefinder sample stream already consumed")
)

// Transport is a byte source whose pending input can be discarded. go.bug.st/serial
// ports satisfy it.
type Transport interface {
	io.Reader
	ResetInputBuffer() error
}

// WithLogger sets the logger for the reader
func WithLogger(logger *slog.Logger) func(r *Reader) {
	return func(r *Reader) {
		r.logger = logger.With(slog.String("component", "rangefinder"))
	}
}

// WithFrameTimeout sets how long Next waits for a complete frame
func WithFrameTimeout(d time.Duration) func(r *Reader) {
	return func(r *Reader) {
		r.frameTimeout = d
	}
}

// WithChecksum makes the reader skip frames whose last byte is not the low
// byte of the sum of the first eight. Only enable it for sensors whose
// firmware fills the checksum byte.
func WithChecksum() func(r *Reader) {
	return func(r *Reader) {
		r.checksum = true
	}
}

// WithNow replaces the time source used for the frame timeout
func WithNow(now func() time.Time) func(r *Reader) {
	return func(r *Reader) {
		r.now = now
	}
}

// Reader turns a byte stream into rangefinder samples. It is not safe for concurrent use.
type Reader struct {
	transport Transport

	buf   []byte
	chunk []byte

	streaming atomic.Bool

	checksum     bool
	frameTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewReader creates a new Reader over t with a discard logger
func NewReader(t Transport, options ...func(r *Reader)) *Reader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	r := Reader{
		transport:    t,
		buf:          make([]byte, 0, 2*FrameSize),
		chunk:        make([]byte, readChunkSize),
		frameTimeout: DefaultFrameTimeout,
		now:          time.Now,
		logger:       logger,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Next blocks until one frame is decoded, the frame timeout expires (ErrNoSample),
// the transport fails (ErrTransport) or ctx is done. Pending input is discarded
// after every decoded frame so the following call reads a fresh measurement.
func (r *Reader) Next(ctx context.Context) (Sample, error) {
	deadline := r.now().Add(r.frameTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}

		if s, ok := r.extract(); ok {
			r.buf = r.buf[:0]
			if err := r.transport.ResetInputBuffer(); err != nil {
				return Sample{}, fmt.Errorf("%w: resetting input buffer: %w", ErrTransport, err)
			}

			metrics.RangefinderSamples.WithLabelValues("valid").Inc()
			return s, nil
		}

		if !r.now().Before(deadline) {
			metrics.RangefinderSamples.WithLabelValues("lost").Inc()
			return Sample{}, fmt.Errorf("%w: nothing decoded within %s", ErrNoSample, r.frameTimeout)
		}

		n, err := r.transport.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
}

// Samples returns a single-use stream of readings. ErrNoSample is yielded and the
// stream continues; any other error ends it.
func (r *Reader) Samples(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		if !r.streaming.CompareAndSwap(false, true) {
			yield(Sample{}, ErrStreamConsumed)
			return
		}

		for {
			s, err := r.Next(ctx)
			if !yield(s, err) {
				return
			}

			if err != nil && !errors.Is(err, ErrNoSample) {
				return
			}
		}
	}
}

// extract drops bytes preceding the first sync marker and decodes a frame if
// a complete one is buffered.
func (r *Reader) extract() (Sample, bool) {
	for {
		off := bytes.Index(r.buf, syncMarker)
		if off < 0 {
			// a trailing sync byte may be the first half of the next marker
			keep := 0
			if n := len(r.buf); n > 0 && r.buf[n-1] == syncByte {
				keep = 1
			}
			r.discard(len(r.buf) - keep)
			return Sample{}, false
		}

		r.discard(off)
		if len(r.buf) < FrameSize {
			return Sample{}, false
		}

		// A stray 0x59 right before a real marker reads as 59 59 59. The frame
		// really starts one byte later when the distance at this offset is
		// beyond anything the sensor reports.
		if r.buf[2] == syncByte && binary.LittleEndian.Uint16(r.buf[2:4]) > maxDistanceCM {
			r.discard(1)
			continue
		}

		if r.checksum && Checksum(r.buf[:FrameSize]) != r.buf[FrameSize-1] {
			r.discard(1)
			continue
		}

		s, err := Decode(r.buf[:FrameSize])
		if err != nil {
			// unreachable with the marker in place
			r.discard(1)
			continue
		}

		return s, true
	}
}

func (r *Reader) discard(n int) {
	if n <= 0 {
		return
	}

	metrics.RangefinderDecodeErrors.Inc()
	r.logger.Debug("discarding unsynchronised bytes", slog.Int("bytes", n))

	r.buf = append(r.buf[:0], r.buf[n:]...)
}
