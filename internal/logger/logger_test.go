package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

func TestNew_LevelAndService(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "test-service", "warn")

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 1, len(lines))
	assert.Equal(t, "test-service", gjson.Get(lines[0], "service").String())
	assert.Equal(t, "shown", gjson.Get(lines[0], "message").String())
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "svc", "loud")
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("NIFTY:CE:WEEK:+0", ts)

	if !strings.HasPrefix(tid, "NIFTY:CE:WEEK:+0-") {
		t.Errorf("expected trace id to start with the leg, got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestCtxAddsTraceField(t *testing.T) {
	var buf bytes.Buffer
	base := Component(New(&buf, "svc", "info"), "engine")

	plain := Ctx(context.Background(), base)
	plain.Info().Msg("plain")
	traced := Ctx(WithTraceID(context.Background(), "abc-123"), base)
	traced.Info().Msg("traced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 2, len(lines))
	assert.False(t, gjson.Get(lines[0], "trace_id").Exists())
	assert.Equal(t, "abc-123", gjson.Get(lines[1], "trace_id").String())
	assert.Equal(t, "engine", gjson.Get(lines[1], "component").String())
}
