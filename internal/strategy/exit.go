package strategy

import (
	"github.com/shopspring/decimal"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/model"
)

// Exit decides target and stop-loss exits for a short option position.
// Both bounds are inclusive and move with the average entry price.
type Exit struct {
	targetPct decimal.Decimal
	stopPct   decimal.Decimal
}

// NewExit creates an exit manager from the strategy percentages.
func NewExit(cfg *config.Strategy) Exit {
	return Exit{targetPct: cfg.TargetPct, stopPct: cfg.StopLossPct}
}

// Levels returns the target and stop prices for an average entry.
func (e Exit) Levels(avgEntry decimal.Decimal) (target, stop decimal.Decimal) {
	target = avgEntry.Mul(hundred.Sub(e.targetPct)).Shift(-2)
	stop = avgEntry.Mul(hundred.Add(e.stopPct)).Shift(-2)
	return target, stop
}

// Check evaluates one price. The stop is tested first; the two bounds sit
// on opposite sides of the entry so at most one can hold.
func (e Exit) Check(avgEntry, price decimal.Decimal) (model.ExitReason, bool) {
	target, stop := e.Levels(avgEntry)
	switch {
	case price.GreaterThanOrEqual(stop):
		return model.ExitStopLoss, true
	case price.LessThanOrEqual(target):
		return model.ExitTarget, true
	}
	return "", false
}

// PnL returns the realized return of a short in percent (4 dp) and in money
// (2 dp) against the allocation scaled by the filled fraction.
func PnL(avgEntry, exitPrice, filledFraction, capital decimal.Decimal) (pct, money decimal.Decimal) {
	if avgEntry.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	move := avgEntry.Sub(exitPrice)
	pct = move.Mul(hundred).DivRound(avgEntry, 4)
	money = capital.Mul(filledFraction).Shift(-2).Mul(move).DivRound(avgEntry, 2)
	return pct, money
}
