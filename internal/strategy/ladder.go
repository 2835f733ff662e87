package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/model"
)

// avgPrecision is the number of decimal places kept in the average entry
// price when the filled fractions do not divide evenly.
const avgPrecision = 8

var hundred = decimal.NewFromInt(100)

// Ladder stages a short entry into tranches at rising premium thresholds
// above the signal's base price. Fills are monotonic and never undone.
type Ladder struct {
	base       decimal.Decimal
	thresholds []decimal.Decimal
	fractions  []decimal.Decimal
	fills      []model.Fill
}

// NewLadder computes the tranche thresholds base × (1 + level/100).
func NewLadder(base decimal.Decimal, cfg *config.Strategy) *Ladder {
	l := &Ladder{
		base:       base,
		thresholds: make([]decimal.Decimal, len(cfg.EntryLevels)),
		fractions:  cfg.Fractions,
		fills:      make([]model.Fill, 0, len(cfg.EntryLevels)),
	}
	for i, lvl := range cfg.EntryLevels {
		l.thresholds[i] = base.Mul(hundred.Add(lvl)).Shift(-2)
	}
	return l
}

// Base returns the signal's base price.
func (l *Ladder) Base() decimal.Decimal { return l.base }

// Thresholds returns the trigger price of each tranche.
func (l *Ladder) Thresholds() []decimal.Decimal { return l.thresholds }

// Observe fills every remaining tranche whose threshold the price has
// reached, in ascending order. Each fill is booked at its own threshold.
func (l *Ladder) Observe(price decimal.Decimal, ts time.Time) []model.Fill {
	var filled []model.Fill
	for k := len(l.fills); k < len(l.thresholds); k++ {
		if price.LessThan(l.thresholds[k]) {
			break
		}
		f := model.Fill{
			Tranche:  k + 1,
			Price:    l.thresholds[k],
			Fraction: l.fractions[k],
			TS:       ts,
		}
		l.fills = append(l.fills, f)
		filled = append(filled, f)
	}
	return filled
}

// Filled returns the number of tranches filled so far.
func (l *Ladder) Filled() int { return len(l.fills) }

// Complete reports whether every tranche is in.
func (l *Ladder) Complete() bool { return len(l.fills) == len(l.thresholds) }

// Fills returns a copy of the fills in order.
func (l *Ladder) Fills() []model.Fill {
	out := make([]model.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// FilledFraction returns the filled share of the full position, in percent.
func (l *Ladder) FilledFraction() decimal.Decimal {
	sum := decimal.Zero
	for _, f := range l.fills {
		sum = sum.Add(f.Fraction)
	}
	return sum
}

// AverageEntry returns the fraction-weighted mean fill price, or zero when
// nothing is filled.
func (l *Ladder) AverageEntry() decimal.Decimal {
	if len(l.fills) == 0 {
		return decimal.Zero
	}
	weighted := decimal.Zero
	for _, f := range l.fills {
		weighted = weighted.Add(f.Price.Mul(f.Fraction))
	}
	return weighted.DivRound(l.FilledFraction(), avgPrecision)
}
