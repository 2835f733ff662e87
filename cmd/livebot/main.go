// cmd/livebot runs the strategy against a live websocket tick feed, or a
// paced replay of the candle store, with alerts, trade journaling, metrics
// and a scheduled end-of-day cutoff.
//
// Usage:
//
//	go run ./cmd/livebot --feed_url=ws://localhost:9001/ws
//	go run ./cmd/livebot --replay_db=data/candles.db --speed=60
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/api"
	"rsi-options-engine/internal/engine"
	"rsi-options-engine/internal/logger"
	"rsi-options-engine/internal/marketdata/agg"
	"rsi-options-engine/internal/marketdata/bus"
	"rsi-options-engine/internal/marketdata/replay"
	"rsi-options-engine/internal/marketdata/wsfeed"
	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/metrics"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/notification"
	"rsi-options-engine/internal/report"
	"rsi-options-engine/internal/store/postgres"
	"rsi-options-engine/internal/store/redis"
	"rsi-options-engine/internal/store/sqlite"
)

const (
	feedBuffer      = 4096
	shutdownTimeout = 30 * time.Second
)

func main() {
	flags := pflag.NewFlagSet("livebot", pflag.ExitOnError)
	flags.String("config", "", "Config file (YAML, TOML or JSON)")
	flags.String("strategy_file", "", "YAML strategy overrides")
	flags.String("log_level", "info", "Log level")
	flags.String("feed_url", "", "Websocket tick feed")
	flags.String("metrics_addr", "", "Metrics and health listen address")
	flags.StringSlice("legs", nil, "Legs to trade, e.g. NIFTY:CE:WEEK:+0")
	replayDB := flags.String("replay_db", "", "Replay this candle database instead of the live feed")
	speed := flags.Float64("speed", 60, "Replay speed multiplier (0 = as fast as possible)")
	from := flags.String("from", "", "Replay from this day (YYYY-MM-DD)")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(cfg.Service, time.Now()))
	log := logger.Ctx(ctx, logger.Component(logger.Init(cfg.Service, cfg.LogLevel), "livebot"))

	bot, err := newBot(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	if *replayDB != "" {
		err = bot.replay(ctx, stop, *replayDB, *from, *speed)
	} else {
		err = bot.live(ctx)
	}
	if err != nil {
		bot.alerts.Error("startup", err)
		log.Error().Stack().Err(err).Msg("feed failed to start")
		stop()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, cleaning up...")
	bot.shutdown()
}

type bot struct {
	cfg     *config.Config
	log     zerolog.Logger
	legs    []model.Leg
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	server  *metrics.Server
	alerts  *notification.Dispatcher
	journal *sqlite.Journal
	sinks   []model.TradeSink
	session *engine.Session
	sched   *engine.Scheduler

	recorder sync.WaitGroup
	closers  []func() error
}

func newBot(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*bot, error) {
	b := &bot{cfg: cfg, log: log}
	for _, s := range cfg.Legs {
		leg, err := model.ParseLeg(s)
		if err != nil {
			return nil, errors.Wrap(err, "legs")
		}
		b.legs = append(b.legs, leg)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	b.metrics = metrics.NewMetrics(reg)
	b.health = metrics.NewHealthStatus()
	b.server = metrics.NewServer(cfg.MetricsAddr, reg, b.health, log)

	b.alerts = notification.NewDispatcher(&cfg.Strategy, log, cfg.AlertQueue)
	b.alerts.OnDrop = func(notification.Alert) { b.metrics.AlertsDropped.Inc() }
	b.alerts.OnSent = func(ch string) { b.metrics.AlertsSent.WithLabelValues(ch).Inc() }
	b.alerts.OnFailure = func(ch string, _ error) { b.metrics.AlertsFailed.WithLabelValues(ch).Inc() }
	b.alerts.Add("log", notification.NewLogNotifier(log))
	if cfg.TelegramToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramToken, strconv.FormatInt(cfg.TelegramChatID, 10))
		if err != nil {
			return nil, err
		}
		b.alerts.Add("telegram", tg)
	}
	if cfg.WebhookURL != "" {
		b.alerts.Add("webhook", notification.NewWebhookNotifier(cfg.WebhookURL))
	}

	journal, err := sqlite.NewJournal(cfg.JournalPath, log)
	if err != nil {
		return nil, err
	}
	b.journal = journal
	b.sinks = append(b.sinks, journal)
	b.health.Register("journal", journal)
	b.server.Handle("/api/", api.NewRouter(journal, cfg.Strategy.Tranches(), nil))

	if cfg.PostgresDSN != "" {
		pg, err := postgres.New(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		b.sinks = append(b.sinks, pg)
		b.health.Register("postgres", pg)
	}
	if cfg.RedisAddr != "" {
		pub, err := redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Stream: cfg.RedisStream}, log)
		if err != nil {
			return nil, err
		}
		b.sinks = append(b.sinks, pub)
		b.alerts.Add("redis", pub)
		b.health.Register("redis", pub)
	}

	eng, err := engine.New(cfg.Strategy, log,
		engine.WithListener(model.Listeners{b.alerts, b.metrics}),
		engine.WithHooks(b.metrics.Hooks()),
	)
	if err != nil {
		return nil, err
	}
	b.session = eng.NewSession(b.legs, b.sinks...)

	// alerts must still drain after ctx is cancelled
	go b.alerts.Run(context.WithoutCancel(ctx))
	b.session.Start(ctx)
	b.server.Start()
	b.health.StartLivenessChecker(ctx, 10*time.Second)
	b.alerts.BotStarted(b.legs)
	log.Info().
		Int("legs", len(b.legs)).
		Str("market", cfg.Strategy.Window.StatusString(time.Now())).
		Msg("bot started")
	return b, nil
}

func (b *bot) dailySummary(day string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	trades, err := b.journal.Trades(ctx, day)
	if err != nil {
		b.log.Error().Err(err).Str("day", day).Msg("daily summary: reading journal")
		b.alerts.Error("journal", err)
		return
	}
	b.alerts.DailySummary(day, trades)
}

// live streams the websocket feed into the session and records one-minute
// candles to the candle store.
func (b *bot) live(ctx context.Context) error {
	// wall-clock jobs only make sense against a wall-clock feed
	sched, err := engine.NewScheduler(b.cfg.Strategy.Window, b.session, b.dailySummary, b.log)
	if err != nil {
		return err
	}
	b.sched = sched
	b.sched.Start()

	ingest, err := wsfeed.New(wsfeed.Config{URL: b.cfg.FeedURL}, b.log)
	if err != nil {
		return err
	}
	ingest.OnConnected = func() { b.health.SetFeedConnected(true) }
	ingest.OnReconnect = func() {
		b.health.SetFeedConnected(false)
		b.metrics.FeedReconnect.Inc()
	}
	ingest.OnBadTick = b.metrics.BadTicks.Inc

	writer, err := sqlite.NewWriter(b.cfg.CandleDBPath, b.log)
	if err != nil {
		return err
	}
	writer.OnCommit = func(n int) { b.metrics.CandlesStored.Add(float64(n)) }
	b.closers = append(b.closers, writer.Close)
	b.health.Register("candles", pingDB{writer})

	feedCh := make(chan model.Event, feedBuffer)
	fan := bus.New[model.Event](feedBuffer)
	sessionCh := fan.Subscribe(true)
	recordCh := fan.Subscribe(false)
	fan.OnDrop = func(int) { b.log.Warn().Msg("candle recorder behind, tick dropped") }

	go func() {
		if err := ingest.Start(ctx, feedCh); err != nil {
			b.log.Error().Err(err).Msg("feed stopped")
		}
	}()
	go fan.Run(ctx, feedCh)

	go func() {
		for ev := range sessionCh {
			b.metrics.TicksTotal.Inc()
			b.health.SetLastTickTime(ev.EventTime())
			if err := b.session.Submit(ctx, ev); err != nil {
				return
			}
		}
	}()

	// Recorder: ticks -> aggregator -> candle store. It runs off the fan-out
	// closing its channel, so open candles are flushed after ctx is cancelled.
	tickCh := make(chan model.Tick, feedBuffer)
	candleCh := make(chan model.Candle, feedBuffer)
	aggregator := agg.New(b.cfg.Strategy.CandleInterval, b.log)
	background := context.WithoutCancel(ctx)
	b.recorder.Add(3)
	go func() {
		defer b.recorder.Done()
		defer close(tickCh)
		for ev := range recordCh {
			if t, ok := ev.(model.Tick); ok {
				tickCh <- t
			}
		}
	}()
	go func() {
		defer b.recorder.Done()
		defer close(candleCh)
		aggregator.Run(background, tickCh, candleCh)
	}()
	go func() {
		defer b.recorder.Done()
		writer.Run(background, candleCh)
	}()
	return nil
}

// replay feeds recorded candles into the session at speed, then stops the
// bot once the data is exhausted.
func (b *bot) replay(ctx context.Context, stop context.CancelFunc, path, from string, speed float64) error {
	reader, err := sqlite.NewReader(path)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, reader.Close)

	var f replay.Filter
	if from != "" {
		if f.From, err = time.ParseInLocation("2006-01-02", from, markethours.IST); err != nil {
			return errors.Wrap(err, "--from")
		}
	}
	b.health.SetFeedConnected(true)

	r := replay.New(reader, b.log)
	go func() {
		defer stop()
		n, err := r.Run(ctx, f, speed, func(ctx context.Context, ev model.Event) error {
			b.metrics.TicksTotal.Inc()
			b.health.SetLastTickTime(ev.EventTime())
			return b.session.Submit(ctx, ev)
		})
		if err != nil && ctx.Err() == nil {
			b.log.Error().Err(err).Msg("replay failed")
			b.alerts.Error("replay", err)
		}
		b.log.Info().Int("candles", n).Msg("replay done")
	}()
	return nil
}

func (b *bot) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if b.sched != nil {
		b.sched.Stop()
	}

	res, err := b.session.Shutdown(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("session shutdown")
	} else {
		ledger := b.session.Ledger()
		tranches := b.cfg.Strategy.Tranches()
		report.Write(os.Stdout, report.Header{
			Title:          "SESSION RESULTS",
			InitialCapital: ledger.Initial(),
			FinalCapital:   ledger.Equity(),
			MaxDrawdown:    ledger.MaxDrawdown(),
			Tranches:       tranches,
		}, report.Summarize(res.Trades, tranches))
		b.alerts.BotStopped(len(res.Trades), ledger.Realized())
	}

	if err := b.alerts.Close(ctx); err != nil {
		b.log.Warn().Err(err).Msg("alerts not fully delivered")
	}
	b.recorder.Wait()

	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			b.log.Error().Err(err).Msg("closing trade sink")
		}
	}
	for _, c := range b.closers {
		c()
	}
	if err := b.server.Stop(ctx); err != nil {
		b.log.Error().Err(err).Msg("metrics server shutdown")
	}
	b.log.Info().Msg("shutdown complete")
}

// pingDB adapts the candle writer to a health probe.
type pingDB struct{ w *sqlite.Writer }

func (p pingDB) Ping(ctx context.Context) error { return p.w.DB().PingContext(ctx) }
