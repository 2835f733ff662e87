// cmd/backtest replays historical one-minute option candles from a CSV file
// or the SQLite candle store through the strategy and prints a report.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/nifty_options.csv --from=2024-03-01 --to=2024-03-28 --out=trades.jsonl
//	go run ./cmd/backtest --db=data/candles.db --trace=decisions.jsonl
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/engine"
	"rsi-options-engine/internal/logger"
	"rsi-options-engine/internal/marketdata/replay"
	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/report"
	"rsi-options-engine/internal/store/postgres"
	"rsi-options-engine/internal/store/sqlite"
)

type options struct {
	csv         string
	db          string
	from        string
	to          string
	underlyings []string
	out         string
	journal     string
	pg          string
	parallel    int
	trace       string
}

func main() {
	flags := pflag.NewFlagSet("backtest", pflag.ExitOnError)
	flags.String("config", "", "Config file (YAML, TOML or JSON)")
	flags.String("strategy_file", "", "YAML strategy overrides")
	flags.String("log_level", "info", "Log level")

	var opts options
	flags.StringVar(&opts.csv, "csv", "", "Historical candle CSV file")
	flags.StringVar(&opts.db, "db", "", "SQLite candle database (used when --csv is empty)")
	flags.StringVar(&opts.from, "from", "", "First trading day to replay (YYYY-MM-DD)")
	flags.StringVar(&opts.to, "to", "", "Last trading day to replay (YYYY-MM-DD)")
	flags.StringSliceVar(&opts.underlyings, "underlying", nil, "Only replay these underlyings")
	flags.StringVar(&opts.out, "out", "", "Write trades as JSON lines to this file")
	flags.StringVar(&opts.journal, "journal", "", "Also journal trades to this SQLite file")
	flags.StringVar(&opts.pg, "pg", "", "Also store trades in PostgreSQL (DSN)")
	flags.IntVar(&opts.parallel, "parallel", 0, "Legs replayed at once (0 = one per CPU)")
	flags.StringVar(&opts.trace, "trace", "", "Write the per-bar decision log as JSON lines to this file")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.Component(logger.Init(cfg.Service, cfg.LogLevel), "backtest")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error().Stack().Err(err).Msg("backtest failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log zerolog.Logger) error {
	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}

	candles, err := loadCandles(ctx, opts, filter)
	if err != nil {
		return err
	}
	candles = filter.Apply(candles)
	if len(candles) == 0 {
		return errors.New("no candles match the requested range")
	}
	log.Info().
		Int("candles", len(candles)).
		Time("first", candles[0].TS).
		Time("last", candles[len(candles)-1].TS).
		Msg("candles loaded")

	engOpts := []engine.Option{}
	if opts.parallel > 0 {
		engOpts = append(engOpts, engine.WithParallelism(opts.parallel))
	}
	if opts.trace != "" {
		f, err := os.Create(opts.trace)
		if err != nil {
			return errors.Wrap(err, "--trace")
		}
		defer f.Close()
		engOpts = append(engOpts, engine.WithTrace(logger.New(f, cfg.Service, "debug")))
	}
	eng, err := engine.New(cfg.Strategy, log, engOpts...)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := eng.Backtest(ctx, replay.Events(candles))
	if err != nil {
		return err
	}
	log.Info().Dur("took", time.Since(start)).Msg("replay finished")

	for _, f := range res.Faults {
		log.Warn().Err(f.Err).Str("leg", f.Leg.Key()).Str("day", f.Day).Msg("leg degraded")
	}

	sinks, err := openSinks(ctx, opts, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("closing trade sink")
			}
		}
	}()
	for _, rec := range res.Trades {
		for _, s := range sinks {
			if err := s.Record(ctx, rec); err != nil {
				return err
			}
		}
	}

	tranches := cfg.Strategy.Tranches()
	report.Write(os.Stdout, report.Header{
		Title:          "BACKTEST RESULTS",
		Period:         markethours.DayKey(candles[0].TS) + " to " + markethours.DayKey(candles[len(candles)-1].TS),
		InitialCapital: res.Ledger.Initial(),
		FinalCapital:   res.Ledger.Equity(),
		MaxDrawdown:    res.Ledger.MaxDrawdown(),
		Tranches:       tranches,
	}, report.Summarize(res.Trades, tranches))
	fmt.Println()
	report.WriteInstruments(os.Stdout, report.ByInstrument(res.Trades, tranches), tranches)
	return nil
}

func buildFilter(opts options) (replay.Filter, error) {
	f := replay.Filter{Underlyings: opts.underlyings}
	if opts.from != "" {
		t, err := time.ParseInLocation("2006-01-02", opts.from, markethours.IST)
		if err != nil {
			return f, errors.Wrap(err, "--from")
		}
		f.From = t
	}
	if opts.to != "" {
		t, err := time.ParseInLocation("2006-01-02", opts.to, markethours.IST)
		if err != nil {
			return f, errors.Wrap(err, "--to")
		}
		f.To = t.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return f, errors.New("--from is after --to")
	}
	return f, nil
}

func loadCandles(ctx context.Context, opts options, f replay.Filter) ([]model.Candle, error) {
	switch {
	case opts.csv != "":
		return replay.LoadCSV(opts.csv)
	case opts.db != "":
		r, err := sqlite.NewReader(opts.db)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.ReadCandles(ctx, f.From, f.To)
	default:
		return nil, errors.New("one of --csv or --db is required")
	}
}

func openSinks(ctx context.Context, opts options, log zerolog.Logger) ([]model.TradeSink, error) {
	var sinks []model.TradeSink
	fail := func(err error) ([]model.TradeSink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}
	if opts.out != "" {
		s, err := report.CreateJSONL(opts.out)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if opts.journal != "" {
		j, err := sqlite.NewJournal(opts.journal, log)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, j)
	}
	if opts.pg != "" {
		p, err := postgres.New(ctx, opts.pg, log)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, p)
	}
	return sinks, nil
}
