package engine

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/indicator"
	"rsi-options-engine/internal/marketdata/agg"
	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/strategy"
)

// Fault records a leg-day taken out of service by bad input.
type Fault struct {
	Leg model.Leg `json:"leg"`
	Day string    `json:"day"`
	Err error     `json:"-"`
}

func (f Fault) Error() string { return f.Leg.Key() + " " + f.Day + ": " + f.Err.Error() }

// Hooks observe the pipeline without influencing it.
type Hooks struct {
	OnCandle func(model.Candle)
	OnFault  func(Fault)
}

// LegRunner drives one leg: candles, RSI, crossing detection and the
// position machine. It is single-goroutine; parallelism happens across legs.
type LegRunner struct {
	leg      model.Leg
	cfg      *config.Strategy
	log      zerolog.Logger
	trace    zerolog.Logger
	listener model.LifecycleListener
	hooks    Hooks
	exit     strategy.Exit

	builder *agg.Builder
	rsi     *indicator.RSI
	cross   *indicator.Crossing
	machine *strategy.Machine

	day       string
	dayClosed bool
	degraded  bool

	lastPrice   decimal.Decimal
	lastPriceTS time.Time
	hasPrice    bool

	out    []model.TradeRecord
	faults []Fault
}

// NewLegRunner wires a runner for leg. cfg must already be validated.
func NewLegRunner(leg model.Leg, cfg *config.Strategy, log zerolog.Logger, listener model.LifecycleListener, hooks Hooks) *LegRunner {
	if listener == nil {
		listener = model.NopListener{}
	}
	return &LegRunner{
		leg:      leg,
		cfg:      cfg,
		log:      log.With().Str("leg", leg.Key()).Logger(),
		trace:    zerolog.Nop(),
		listener: listener,
		hooks:    hooks,
		exit:     strategy.NewExit(cfg),
		builder:  agg.NewBuilder(leg, cfg.CandleInterval),
		rsi:      indicator.NewRSI(cfg.RSIPeriod),
		cross:    indicator.NewCrossing(cfg.RSIThreshold),
		machine:  strategy.NewMachine(leg, cfg, listener),
	}
}

func (r *LegRunner) Leg() model.Leg { return r.leg }

// State exposes the machine state, mainly for tests and status output.
func (r *LegRunner) State() strategy.State { return r.machine.State() }

// Degraded reports whether the current day was abandoned after a fault.
func (r *LegRunner) Degraded() bool { return r.degraded }

// Faults returns every fault seen so far.
func (r *LegRunner) Faults() []Fault { return r.faults }

// Process consumes one event and returns the trades it closed.
func (r *LegRunner) Process(ev model.Event) []model.TradeRecord {
	r.out = r.out[:0]
	ts := ev.EventTime()

	if hb, ok := ev.(model.Heartbeat); ok {
		r.heartbeat(hb)
		return r.flushOut()
	}

	if err := r.builder.Check(ts); err != nil {
		if !r.degraded {
			r.degrade(err)
		}
		return r.flushOut()
	}
	r.rollDay(ts)
	if r.degraded {
		return r.flushOut()
	}

	switch e := ev.(type) {
	case model.Tick:
		sealed, ok, err := r.builder.Ingest(e)
		if err != nil {
			r.degrade(err)
			break
		}
		if ok {
			r.onCandle(sealed, true)
		}
		r.onPrice(e.Price, e.TS)
	case model.Candle:
		sealed, ok, err := r.builder.PassThrough(e)
		if err != nil {
			r.degrade(err)
			break
		}
		if ok {
			r.onCandle(sealed, true)
		}
		for _, p := range e.Path() {
			r.onPrice(p, e.TS)
		}
		r.onCandle(e, true)
	}
	return r.flushOut()
}

// Finish closes out the current day as if the feed ended: the open candle is
// sealed and any position with fills is closed at the last known price.
func (r *LegRunner) Finish() []model.TradeRecord {
	r.out = r.out[:0]
	if r.day != "" {
		r.endDay()
	}
	return r.flushOut()
}

func (r *LegRunner) flushOut() []model.TradeRecord {
	if len(r.out) == 0 {
		return nil
	}
	recs := make([]model.TradeRecord, len(r.out))
	copy(recs, r.out)
	return recs
}

// heartbeat can only close the day the leg is on. Days roll on data, so a
// heartbeat from another day leaves the leg untouched.
func (r *LegRunner) heartbeat(hb model.Heartbeat) {
	if r.day == "" || r.degraded || markethours.DayKey(hb.TS) != r.day {
		return
	}
	if hb.TS.Before(r.builder.Last()) {
		return
	}
	if r.cfg.Window.PhaseOf(hb.TS) >= markethours.AtCutoff {
		r.cutoff(r.cfg.Window.Cutoff(hb.TS))
	}
}

func (r *LegRunner) rollDay(ts time.Time) {
	day := markethours.DayKey(ts)
	if day == r.day {
		return
	}
	if r.day != "" {
		r.endDay()
	}
	r.day = day
}

func (r *LegRunner) onPrice(paise int64, ts time.Time) {
	phase := r.cfg.Window.PhaseOf(ts)
	if phase == markethours.AfterCutoff {
		r.cutoff(r.cfg.Window.Cutoff(ts))
		return
	}

	price := model.Rupees(paise)
	r.lastPrice, r.lastPriceTS, r.hasPrice = price, ts, true
	if r.dayClosed || phase == markethours.BeforeOpen {
		return
	}

	ladder, before := r.machine.Ladder(), 0
	if ladder != nil {
		before = ladder.Filled()
		if r.tracing() && r.machine.State() == strategy.Open {
			target, stop := r.exit.Levels(ladder.AverageEntry())
			r.trace.Debug().
				Time("ts", ts).
				Str("price", price.String()).
				Str("avg_entry", ladder.AverageEntry().String()).
				Str("target", target.String()).
				Str("stop", stop.String()).
				Msg("exit check")
		}
	}
	rec, closed := r.machine.OnPrice(price, ts, phase == markethours.InWindow)
	if r.tracing() && ladder != nil && ladder.Filled() > before {
		r.trace.Debug().
			Time("ts", ts).
			Str("price", price.String()).
			Int("parts", ladder.Filled()).
			Str("avg_entry", ladder.AverageEntry().String()).
			Msg("fill")
	}
	if closed {
		r.emit(rec)
	}
	if phase == markethours.AtCutoff {
		r.cutoff(ts)
	}
}

func (r *LegRunner) onCandle(c model.Candle, allowSignal bool) {
	if r.hooks.OnCandle != nil {
		r.hooks.OnCandle(c)
	}
	v, ok := r.rsi.Update(c)
	if r.tracing() {
		ev := r.trace.Debug().
			Time("bar", c.TS).
			Str("close", model.Rupees(c.Close).String()).
			Str("state", r.machine.State().String())
		if ok {
			ev = ev.Float64("rsi", v)
		} else {
			ev = ev.Int("warmup", r.rsi.Warmup())
		}
		ev.Msg("bar")
	}
	if !ok {
		return
	}
	if !r.cross.Next(v) || !allowSignal || r.dayClosed {
		return
	}

	// the signal exists once the bar has closed
	sigTS := c.TS.Add(r.builder.Interval())
	if !r.cfg.Window.Contains(sigTS) {
		return
	}
	sig := model.Signal{
		Leg:       r.leg,
		Day:       r.day,
		BasePrice: model.Rupees(c.Close),
		RSI:       v,
		TS:        sigTS,
	}
	if !r.machine.OnSignal(sig) {
		r.trace.Debug().Time("signal_ts", sigTS).Float64("rsi", v).Msg("crossing ignored")
		return
	}
	r.log.Info().
		Str("day", r.day).
		Str("base", sig.BasePrice.String()).
		Float64("rsi", v).
		Time("signal_ts", sigTS).
		Msg("signal")
	if r.tracing() {
		var levels []string
		for _, th := range r.machine.Ladder().Thresholds() {
			levels = append(levels, th.String())
		}
		r.trace.Debug().
			Time("signal_ts", sigTS).
			Str("base", sig.BasePrice.String()).
			Float64("rsi", v).
			Strs("thresholds", levels).
			Msg("signal")
	}
}

func (r *LegRunner) tracing() bool { return r.trace.GetLevel() <= zerolog.DebugLevel }

// cutoff force-closes the day's cycle once.
func (r *LegRunner) cutoff(ts time.Time) {
	if r.dayClosed {
		return
	}
	r.dayClosed = true
	if rec, ok := r.machine.ForceClose(r.lastPrice, ts); ok {
		r.emit(rec)
	}
}

func (r *LegRunner) endDay() {
	if c, ok := r.builder.Flush(); ok && !r.degraded {
		r.onCandle(c, false)
	}
	if r.hasPrice {
		r.cutoff(r.lastPriceTS)
	} else {
		r.cutoff(r.builder.Last())
	}

	r.rsi.Reset()
	r.cross.Reset()
	r.machine.ResetDay()
	r.dayClosed = false
	r.degraded = false
	r.hasPrice = false
}

func (r *LegRunner) degrade(err error) {
	r.degraded = true
	f := Fault{Leg: r.leg, Day: r.day, Err: err}
	r.faults = append(r.faults, f)
	r.log.Error().Err(err).Str("day", r.day).Msg("leg degraded for the rest of the day")

	if r.hooks.OnFault != nil {
		r.hooks.OnFault(f)
	}
	r.listener.LegDegraded(r.leg, r.day, err)

	r.builder.Flush()
	if r.hasPrice {
		r.cutoff(r.lastPriceTS)
	} else {
		r.cutoff(r.builder.Last())
	}
}

func (r *LegRunner) emit(rec model.TradeRecord) {
	r.log.Info().
		Str("trade_id", rec.ID).
		Str("reason", string(rec.ExitReason)).
		Int("parts", rec.PartsFilled).
		Str("avg_entry", rec.AvgEntry.String()).
		Str("exit", rec.ExitPrice.String()).
		Str("pnl_pct", rec.PnLPct.String()).
		Msg("trade closed")
	r.trace.Debug().
		Time("ts", rec.ExitTS).
		Str("reason", string(rec.ExitReason)).
		Str("exit", rec.ExitPrice.String()).
		Str("pnl_pct", rec.PnLPct.String()).
		Msg("exit")
	r.out = append(r.out, rec)
}
