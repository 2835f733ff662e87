// Package notification delivers lifecycle and operational alerts to
// external channels (log, Telegram, webhooks, Redis streams) without ever
// blocking the trading pipeline.
package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Kind identifies what an alert is about.
type Kind string

const (
	KindSignal   Kind = "signal"
	KindEntry    Kind = "entry"
	KindTarget   Kind = "target"
	KindStopLoss Kind = "stop_loss"
	KindEOD      Kind = "eod"
	KindExpired  Kind = "expired"
	KindDegraded Kind = "degraded"
	KindStarted  Kind = "bot_started"
	KindStopped  Kind = "bot_stopped"
	KindError    Kind = "error"
	KindSummary  Kind = "daily_summary"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Kind    Kind       `json:"kind"`
	Leg     string     `json:"leg,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	TS      time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	ev := n.log.Info()
	switch alert.Level {
	case AlertWarning:
		ev = n.log.Warn()
	case AlertCritical:
		ev = n.log.Error()
	}
	ev.Str("kind", string(alert.Kind)).
		Str("leg", alert.Leg).
		Str("title", alert.Title).
		Msg(alert.Message)
	return nil
}
