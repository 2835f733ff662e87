// Package wsfeed connects to a JSON websocket tick server and feeds option
// prices into the live session.
//
// One message carries one observation:
//
//	{"leg":"NIFTY:CE:WEEK:+0","ts":"2024-03-05T09:21:07+05:30","price":152.35,"volume":75,"oi":41000,"iv":13.4}
//
// ts may also be epoch milliseconds. price is in rupees.
package wsfeed

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"rsi-options-engine/internal/model"
)

// Config holds configuration for the websocket ingest.
type Config struct {
	// URL of the tick server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest streams ticks from a websocket server. It implements
// model.TickSource.
type Ingest struct {
	cfg Config
	log zerolog.Logger

	// Optional hooks, set before Start.
	OnReconnect func()
	OnBadTick   func()
	OnConnected func()
}

// New creates an Ingest. Returns an error if the URL is unparseable.
func New(cfg Config, log zerolog.Logger) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "wsfeed url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("wsfeed url %q: scheme must be ws or wss", cfg.URL)
	}
	return &Ingest{cfg: cfg, log: log.With().Str("component", "wsfeed").Logger()}, nil
}

// Start connects and streams ticks into out. Blocks until ctx is cancelled,
// reconnecting with exponential backoff on disconnect.
func (ing *Ingest) Start(ctx context.Context, out chan<- model.Event) error {
	delay := ing.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := ing.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		ing.log.Warn().Err(err).Dur("retry_in", delay).Msg("feed disconnected")
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes one connection and reads until disconnect or ctx cancel.
// connected reports whether the dial succeeded.
func (ing *Ingest) runOnce(ctx context.Context, out chan<- model.Event) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return false, errors.Wrap(err, "dial")
	}
	defer conn.Close()

	ing.log.Info().Str("url", ing.cfg.URL).Msg("feed connected")
	if ing.OnConnected != nil {
		ing.OnConnected()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, errors.Wrap(err, "read")
		}

		tick, err := ParseTick(raw)
		if err != nil {
			ing.log.Debug().Err(err).Bytes("raw", raw).Msg("bad tick dropped")
			if ing.OnBadTick != nil {
				ing.OnBadTick()
			}
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return true, nil
		}
	}
}

// ParseTick decodes one feed message.
func ParseTick(raw []byte) (model.Tick, error) {
	if !gjson.ValidBytes(raw) {
		return model.Tick{}, errors.New("invalid json")
	}
	res := gjson.GetManyBytes(raw, "leg", "ts", "price", "volume", "oi", "iv")

	var t model.Tick
	var err error
	if t.Leg, err = model.ParseLeg(res[0].String()); err != nil {
		return t, err
	}

	switch ts := res[1]; ts.Type {
	case gjson.Number:
		t.TS = time.UnixMilli(ts.Int())
	case gjson.String:
		if t.TS, err = time.Parse(time.RFC3339Nano, ts.String()); err != nil {
			return t, errors.Wrap(err, "ts")
		}
	default:
		return t, errors.New("missing ts")
	}

	if res[2].Type != gjson.Number && res[2].Type != gjson.String {
		return t, errors.New("missing price")
	}
	price, err := decimal.NewFromString(res[2].String())
	if err != nil {
		return t, errors.Wrap(err, "price")
	}
	if !price.IsPositive() {
		return t, errors.Errorf("non-positive price %s", price)
	}
	t.Price = model.Paise(price)

	t.Volume = res[3].Int()
	t.OI = res[4].Int()
	t.IV = res[5].Float()
	return t, nil
}
