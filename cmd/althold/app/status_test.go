package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roman-kulish/althold/internal/telemetry"
)

type fixedProvider struct {
	t atomic.Pointer[telemetry.Telemetry]
}

func (p *fixedProvider) Get() *telemetry.Telemetry {
	return p.t.Load()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStatusAttrs(t *testing.T) {
	attrs := statusAttrs(&telemetry.Telemetry{
		State:    "Hovering",
		Phase:    "hold",
		Altitude: telemetry.Ptr(0.98),
		Throttle: telemetry.Ptr[int64](1480),
	})

	assert.Equal(t, []any{
		slog.String("state", "Hovering"),
		slog.String("phase", "hold"),
		slog.Float64("altitude", 0.98),
		slog.Int64("throttle", 1480),
	}, attrs)

	assert.Equal(t, []any{slog.String("state", "Idle")}, statusAttrs(&telemetry.Telemetry{State: "Idle"}))
}

func TestReportStatus(t *testing.T) {
	buf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var p fixedProvider
	p.t.Store(&telemetry.Telemetry{Timestamp: time.Now(), State: "TakingOff"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reportStatus(ctx, &p, time.Millisecond, logger)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "state=TakingOff")
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	// an unchanged snapshot is logged once
	assert.Equal(t, 1, strings.Count(buf.String(), "msg=status"))
}
