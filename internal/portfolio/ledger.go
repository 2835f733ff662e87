// Package portfolio tracks account-level capital as trades are realized.
//
// The ledger is written only from the goroutine that finalizes trade
// records, after the per-leg pipelines have produced them. Readers may
// query it concurrently.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rsi-options-engine/internal/model"
)

// Point is one step of the equity curve.
type Point struct {
	TS     time.Time       `json:"ts"`
	Equity decimal.Decimal `json:"equity"`
}

// Ledger accumulates realized P&L over an initial capital.
type Ledger struct {
	mu         sync.RWMutex
	initial    decimal.Decimal
	allocation decimal.Decimal

	equity      decimal.Decimal
	peak        decimal.Decimal
	maxDrawdown decimal.Decimal // percent of peak

	trades  int
	byUnder map[string]decimal.Decimal
	byDay   map[string]decimal.Decimal
	curve   []Point
}

// NewLedger starts a ledger at initial capital. allocation is the capital
// committed to each position.
func NewLedger(initial, allocation decimal.Decimal) *Ledger {
	return &Ledger{
		initial:    initial,
		allocation: allocation,
		equity:     initial,
		peak:       initial,
		byUnder:    make(map[string]decimal.Decimal),
		byDay:      make(map[string]decimal.Decimal),
		curve:      make([]Point, 0, 256),
	}
}

// Allocation returns the per-position capital.
func (l *Ledger) Allocation() decimal.Decimal { return l.allocation }

// Apply books a finalized trade.
func (l *Ledger) Apply(rec model.TradeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades++
	l.equity = l.equity.Add(rec.PnLMoney)
	l.byUnder[rec.Leg.Underlying] = l.byUnder[rec.Leg.Underlying].Add(rec.PnLMoney)
	l.byDay[rec.Day] = l.byDay[rec.Day].Add(rec.PnLMoney)
	l.curve = append(l.curve, Point{TS: rec.ExitTS, Equity: l.equity})

	if l.equity.GreaterThan(l.peak) {
		l.peak = l.equity
	}
	if l.peak.IsPositive() {
		dd := l.peak.Sub(l.equity).Div(l.peak).Shift(2).Round(4)
		if dd.GreaterThan(l.maxDrawdown) {
			l.maxDrawdown = dd
		}
	}
}

// Initial returns the starting capital.
func (l *Ledger) Initial() decimal.Decimal { return l.initial }

// Equity returns initial capital plus realized P&L.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equity
}

// Realized returns total realized P&L.
func (l *Ledger) Realized() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equity.Sub(l.initial)
}

// RealizedFor returns realized P&L for one underlying.
func (l *Ledger) RealizedFor(underlying string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byUnder[underlying]
}

// DayPnL returns realized P&L booked on day (YYYY-MM-DD).
func (l *Ledger) DayPnL(day string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byDay[day]
}

// Trades returns the number of trades applied.
func (l *Ledger) Trades() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.trades
}

// MaxDrawdown returns the largest peak-to-trough fall, in percent.
func (l *Ledger) MaxDrawdown() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxDrawdown
}

// Curve returns a snapshot of the equity curve.
func (l *Ledger) Curve() []Point {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]Point, len(l.curve))
	copy(cp, l.curve)
	return cp
}
