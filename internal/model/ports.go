package model

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ── Port Interfaces ──
// These interfaces decouple the lifecycle engine from concrete delivery,
// storage and feed implementations.

// LifecycleListener receives one call per position lifecycle transition.
// Implementations must not block; the engine calls them inline, and legs
// running in parallel may call them concurrently.
type LifecycleListener interface {
	// SignalCreated fires when an RSI crossing arms the ladder.
	SignalCreated(sig Signal)

	// TrancheFilled fires for every tranche fill, in ascending order.
	TrancheFilled(leg Leg, fill Fill, avgEntry decimal.Decimal)

	// PositionOpened fires on the first fill of a cycle.
	PositionOpened(leg Leg, fill Fill)

	// PositionClosed fires once a TradeRecord is final.
	PositionClosed(rec TradeRecord)

	// SignalExpired fires when a day ends with a signal but no fills.
	SignalExpired(sig Signal)

	// LegDegraded fires when a leg stops processing for the rest of a day.
	LegDegraded(leg Leg, day string, err error)
}

// TradeSink persists or forwards finalized trade records.
type TradeSink interface {
	Record(ctx context.Context, rec TradeRecord) error
	Close() error
}

// TickSource pushes live events into out until ctx is cancelled.
type TickSource interface {
	Start(ctx context.Context, out chan<- Event) error
}

// CandleReader reads pre-built 1-minute candles for replay.
type CandleReader interface {
	// ReadCandles returns candles in [from, to), ordered by timestamp then leg.
	// A zero from or to leaves that side open.
	ReadCandles(ctx context.Context, from, to time.Time) ([]Candle, error)

	Close() error
}

// Listeners fans every event out to each listener in order.
type Listeners []LifecycleListener

func (ls Listeners) SignalCreated(sig Signal) {
	for _, l := range ls {
		l.SignalCreated(sig)
	}
}

func (ls Listeners) TrancheFilled(leg Leg, fill Fill, avgEntry decimal.Decimal) {
	for _, l := range ls {
		l.TrancheFilled(leg, fill, avgEntry)
	}
}

func (ls Listeners) PositionOpened(leg Leg, fill Fill) {
	for _, l := range ls {
		l.PositionOpened(leg, fill)
	}
}

func (ls Listeners) PositionClosed(rec TradeRecord) {
	for _, l := range ls {
		l.PositionClosed(rec)
	}
}

func (ls Listeners) SignalExpired(sig Signal) {
	for _, l := range ls {
		l.SignalExpired(sig)
	}
}

func (ls Listeners) LegDegraded(leg Leg, day string, err error) {
	for _, l := range ls {
		l.LegDegraded(leg, day, err)
	}
}

// NopListener discards every lifecycle event.
type NopListener struct{}

func (NopListener) SignalCreated(Signal) {}
func (NopListener) TrancheFilled(Leg, Fill, decimal.Decimal) {}
func (NopListener) PositionOpened(Leg, Fill) {}
func (NopListener) PositionClosed(TradeRecord) {}
func (NopListener) SignalExpired(Signal) {}
func (NopListener) LegDegraded(Leg, string, error) {}
