// Package logger provides structured logging using zerolog.
// It sets up a JSON logger with service-level context and provides
// trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// Init creates a JSON logger on stdout for the given service.
// Unknown levels fall back to info.
func Init(service, level string) zerolog.Logger {
	return New(os.Stdout, service, level)
}

// New creates a logger writing JSON to w.
func New(w io.Writer, service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component derives a sub-logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a leg key and timestamp.
// Format: "{leg}-{unixNano}".
func GenerateTraceID(leg string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", leg, ts.UnixNano())
}

// Ctx returns l with the context's trace ID attached, if any.
func Ctx(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	tid := TraceID(ctx)
	if tid == "" {
		return l
	}
	return l.With().Str("trace_id", tid).Logger()
}
