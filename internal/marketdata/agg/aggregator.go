package agg

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rsi-options-engine/internal/model"
)

// Aggregator builds candles for many legs from one interleaved tick stream.
// It runs in a single goroutine and emits each candle when its bucket rolls
// over for that leg, or on shutdown.
type Aggregator struct {
	interval time.Duration
	builders map[string]*Builder
	log      zerolog.Logger

	// Metrics hooks (optional, set externally)
	OnDroppedTick func()
	OnCandle      func(model.Candle)
}

// New creates an Aggregator with the given bucket width.
func New(interval time.Duration, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		interval: interval,
		builders: make(map[string]*Builder),
		log:      log.With().Str("component", "agg").Logger(),
	}
}

// Run consumes ticks until ctx is cancelled or tickCh is closed, then flushes
// every open candle. Out-of-order ticks are dropped per leg.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, candleCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			a.flushAll(candleCh)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flushAll(candleCh)
				return
			}
			a.processTick(tick, candleCh)
		}
	}
}

func (a *Aggregator) processTick(tick model.Tick, candleCh chan<- model.Candle) {
	key := tick.Leg.Key()
	b, exists := a.builders[key]
	if !exists {
		b = NewBuilder(tick.Leg, a.interval)
		a.builders[key] = b
	}

	sealed, ok, err := b.Ingest(tick)
	if err != nil {
		a.log.Debug().Err(err).Msg("late tick dropped")
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		return
	}
	if ok {
		a.emit(sealed, candleCh)
	}
}

// flushAll emits all open candles regardless of bucket.
func (a *Aggregator) flushAll(candleCh chan<- model.Candle) {
	for _, b := range a.builders {
		if c, ok := b.Flush(); ok {
			a.emit(c, candleCh)
		}
	}
}

// emit sends a finalized candle to candleCh. Non-blocking to avoid stalling the feed.
func (a *Aggregator) emit(c model.Candle, candleCh chan<- model.Candle) {
	if a.OnCandle != nil {
		a.OnCandle(c)
	}
	select {
	case candleCh <- c:
	default:
		a.log.Warn().Str("leg", c.Leg.Key()).Time("ts", c.TS).Msg("candleCh full, dropping candle")
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
	}
}
