// Package engine runs the per-leg signal and position pipelines, either over
// a recorded event stream (Backtest) or over a live feed (Session).
package engine

import (
	"context"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/portfolio"
)

// ctxCheckEvery bounds how many events a leg processes between
// cancellation checks.
const ctxCheckEvery = 1024

// Result is the outcome of a run.
type Result struct {
	Trades []model.TradeRecord
	Faults []Fault
	Legs   []model.Leg
	Events int
	Ledger *portfolio.Ledger
}

// Engine holds the validated strategy and the observers shared by its runs.
type Engine struct {
	cfg         *config.Strategy
	log         zerolog.Logger
	trace       zerolog.Logger
	listener    model.LifecycleListener
	hooks       Hooks
	parallelism int
}

// Option configures an Engine.
type Option func(*Engine)

// WithListener receives every lifecycle transition. It may be called from
// several legs at once.
func WithListener(l model.LifecycleListener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithHooks installs pipeline observers.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithTrace writes a per-bar decision log (RSI, signals, fills, exit
// checks) to trace at debug level.
func WithTrace(trace zerolog.Logger) Option {
	return func(e *Engine) { e.trace = trace }
}

// WithParallelism caps how many legs run at once in a backtest. 1 runs
// legs one after another.
func WithParallelism(n int) Option {
	return func(e *Engine) { e.parallelism = n }
}

// New validates cfg and builds an engine. A ConfigurationError is returned
// before any event is looked at.
func New(cfg config.Strategy, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         &cfg,
		log:         log.With().Str("component", "engine").Logger(),
		trace:       zerolog.Nop(),
		listener:    model.NopListener{},
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = 1
	}
	return e, nil
}

// Strategy returns the engine's parameters.
func (e *Engine) Strategy() config.Strategy { return *e.cfg }

func (e *Engine) newRunner(leg model.Leg) *LegRunner {
	r := NewLegRunner(leg, e.cfg, e.log, e.listener, e.hooks)
	r.trace = e.trace.With().Str("leg", leg.Key()).Logger()
	return r
}

// Backtest replays events, which must be in timestamp order within each
// leg. Legs run in parallel; the returned trades are ordered by exit time,
// leg and entry time, so the result is the same for any parallelism.
func (e *Engine) Backtest(ctx context.Context, events []model.Event) (*Result, error) {
	legs, streams := partition(events)

	perLeg := make([][]model.TradeRecord, len(legs))
	faults := make([][]Fault, len(legs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i := range legs {
		i := i
		g.Go(func() error {
			r := e.newRunner(legs[i])
			var out []model.TradeRecord
			for n, ev := range streams[i] {
				if n%ctxCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				out = append(out, r.Process(ev)...)
			}
			out = append(out, r.Finish()...)
			perLeg[i] = out
			faults[i] = r.Faults()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Legs:   legs,
		Events: len(events),
		Ledger: portfolio.NewLedger(e.cfg.InitialCapital, e.cfg.CapitalPerPosition),
	}
	for i := range legs {
		res.Trades = append(res.Trades, perLeg[i]...)
		res.Faults = append(res.Faults, faults[i]...)
	}
	sortTrades(res.Trades)
	for _, rec := range res.Trades {
		res.Ledger.Apply(rec)
	}

	e.log.Info().
		Int("events", res.Events).
		Int("legs", len(legs)).
		Int("trades", len(res.Trades)).
		Int("faults", len(res.Faults)).
		Msg("backtest complete")
	return res, nil
}

// partition splits events into per-leg streams, keeping their order. Legs
// are returned in order of first appearance.
func partition(events []model.Event) ([]model.Leg, [][]model.Event) {
	idx := make(map[string]int)
	var legs []model.Leg
	var streams [][]model.Event
	for _, ev := range events {
		leg := ev.EventLeg()
		i, ok := idx[leg.Key()]
		if !ok {
			i = len(legs)
			idx[leg.Key()] = i
			legs = append(legs, leg)
			streams = append(streams, nil)
		}
		streams[i] = append(streams[i], ev)
	}
	return legs, streams
}

func sortTrades(trades []model.TradeRecord) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.ExitTS.Equal(b.ExitTS) {
			return a.ExitTS.Before(b.ExitTS)
		}
		if ka, kb := a.Leg.Key(), b.Leg.Key(); ka != kb {
			return ka < kb
		}
		if !a.EntryTS.Equal(b.EntryTS) {
			return a.EntryTS.Before(b.EntryTS)
		}
		return a.ID < b.ID
	})
}
