// Package redis publishes lifecycle alerts and finalized trades to Redis
// streams and pub/sub channels for dashboards and downstream consumers.
package redis

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/notification"
)

const (
	// one trading session of alerts with headroom
	alertsMaxLen     = 5000
	tradesMaxLen     = 20000
	defaultLatestTTL = 24 * time.Hour
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // key prefix, e.g. "rsibot:events"
}

// client is the subset of the Redis API the publisher uses.
type client interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Close() error
}

// Publisher writes alerts and trades to Redis. It is a notification channel
// and a trade sink at the same time.
type Publisher struct {
	client client
	prefix string
	log    zerolog.Logger
}

// New connects to Redis and pings the server.
func New(cfg Config, log zerolog.Logger) (*Publisher, error) {
	c := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	log = log.With().Str("component", "redis").Logger()
	log.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return newPublisher(c, cfg.Stream, log), nil
}

func newPublisher(c client, prefix string, log zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = "rsibot:events"
	}
	return &Publisher{client: c, prefix: prefix, log: log}
}

// AlertStream is the stream key alerts are appended to.
func (p *Publisher) AlertStream() string { return p.prefix + ":alerts" }

// TradeStream is the stream key closed trades are appended to.
func (p *Publisher) TradeStream() string { return p.prefix + ":trades" }

// Send appends the alert to the alert stream and publishes it on the
// matching pub/sub channel.
func (p *Publisher) Send(ctx context.Context, alert notification.Alert) error {
	data, err := sonic.MarshalString(alert)
	if err != nil {
		return errors.Wrap(err, "redis: marshal alert")
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.AlertStream(),
		MaxLen: alertsMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind": string(alert.Kind),
			"data": data,
		},
	}).Err()
	if err != nil {
		return errors.Wrapf(err, "redis XADD %s", p.AlertStream())
	}
	if err := p.client.Publish(ctx, "pub:"+p.AlertStream(), data).Err(); err != nil {
		return errors.Wrap(err, "redis publish alert")
	}
	return nil
}

// Record appends a finalized trade to the trade stream and stores it as the
// leg's latest trade.
func (p *Publisher) Record(ctx context.Context, rec model.TradeRecord) error {
	data, err := sonic.MarshalString(rec)
	if err != nil {
		return errors.Wrap(err, "redis: marshal trade")
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.TradeStream(),
		MaxLen: tradesMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":   rec.ID,
			"leg":  rec.Leg.Key(),
			"data": data,
		},
	}).Err()
	if err != nil {
		return errors.Wrapf(err, "redis XADD %s", p.TradeStream())
	}

	latestKey := p.prefix + ":latest:" + rec.Leg.Key()
	if err := p.client.Set(ctx, latestKey, data, defaultLatestTTL).Err(); err != nil {
		return errors.Wrapf(err, "redis SET %s", latestKey)
	}
	if err := p.client.Publish(ctx, "pub:"+p.TradeStream(), data).Err(); err != nil {
		return errors.Wrap(err, "redis publish trade")
	}
	return nil
}

// Ping reports whether the server is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
