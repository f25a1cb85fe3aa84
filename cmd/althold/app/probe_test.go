package app

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/althold/internal/rangefinder"
)

type reading struct {
	sample rangefinder.Sample
	err    error
}

type fakeStream []reading

func (f fakeStream) Samples(context.Context) iter.Seq2[rangefinder.Sample, error] {
	return func(yield func(rangefinder.Sample, error) bool) {
		for _, r := range f {
			if !yield(r.sample, r.err) {
				return
			}
		}
	}
}

func TestPrintSamples(t *testing.T) {
	stream := fakeStream{
		{sample: rangefinder.Sample{Distance: 0.42, Strength: 1234, Temperature: 40.5}},
		{err: rangefinder.ErrNoSample},
		{sample: rangefinder.Sample{Distance: 0.43, Strength: 900, Temperature: 40.5}},
		{sample: rangefinder.Sample{Distance: 9, Strength: 1, Temperature: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, printSamples(context.Background(), stream, 3, &buf))

	out := buf.String()
	assert.Contains(t, out, "0.42 m")
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "error: "+rangefinder.ErrNoSample.Error())
	assert.NotContains(t, out, "9.00 m")
	assert.Contains(t, out, "3 samples, 1 failed")
}

func TestPrintSamples_TransportError(t *testing.T) {
	stream := fakeStream{
		{sample: rangefinder.Sample{Distance: 0.42}},
		{err: rangefinder.ErrTransport},
	}

	var buf bytes.Buffer
	err := printSamples(context.Background(), stream, 10, &buf)
	assert.True(t, errors.Is(err, rangefinder.ErrTransport))
}
