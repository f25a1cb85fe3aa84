package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/althold/internal/rangefinder"
)

// Probe prints count rangefinder samples to w without touching the flight controller
func Probe(ctx context.Context, config *Config, count int, w io.Writer, logger *slog.Logger) error {
	port, err := rangefinder.OpenSerial(config.Rangefinder)
	if err != nil {
		return fmt.Errorf("failed to open rangefinder: %w", err)
	}
	defer port.Close()

	reader := rangefinder.NewReader(port,
		append(config.Rangefinder.ReaderOptions(), rangefinder.WithLogger(logger))...)

	return printSamples(ctx, reader, count, w)
}

type sampleStream interface {
	Samples(ctx context.Context) iter.Seq2[rangefinder.Sample, error]
}

func printSamples(ctx context.Context, s sampleStream, count int, w io.Writer) error {
	var n, failures int
	for sample, err := range s.Samples(ctx) {
		if err != nil && !errors.Is(err, rangefinder.ErrNoSample) {
			return err
		}

		n++
		if err != nil {
			failures++
			fmt.Fprintf(w, "%4d  error: %s\n", n, err)
		} else {
			fmt.Fprintf(w, "%4d  %6.2f m  strength %-6s  %5.1f °C\n",
				n, sample.Distance, humanize.Comma(int64(sample.Strength)), sample.Temperature)
		}

		if n >= count {
			break
		}
	}

	fmt.Fprintf(w, "%s samples, %s failed\n", humanize.Comma(int64(n)), humanize.Comma(int64(failures)))

	return nil
}
