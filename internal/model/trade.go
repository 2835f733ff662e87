package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is an RSI upward crossing that arms the entry ladder for one leg-day.
type Signal struct {
	Leg       Leg             `json:"leg"`
	Day       string          `json:"day"` // trading day, YYYY-MM-DD in exchange time
	BasePrice decimal.Decimal `json:"base_price"`
	RSI       float64         `json:"rsi"`
	TS        time.Time       `json:"ts"`
}

// Fill is one tranche entry of the staggered short.
type Fill struct {
	Tranche  int             `json:"tranche"` // 1-based
	Price    decimal.Decimal `json:"price"`
	Fraction decimal.Decimal `json:"fraction"` // percent of the full position
	TS       time.Time       `json:"ts"`
}

// ExitReason tells why a position was closed.
type ExitReason string

const (
	ExitTarget   ExitReason = "target"
	ExitStopLoss ExitReason = "stop_loss"
	ExitEOD      ExitReason = "eod"
)

// TradeRecord is a finalized, immutable position lifecycle.
type TradeRecord struct {
	ID             string          `json:"id"`
	Leg            Leg             `json:"leg"`
	Day            string          `json:"day"`
	Signal         Signal          `json:"signal"`
	Entries        []Fill          `json:"entries"`
	AvgEntry       decimal.Decimal `json:"avg_entry"`
	ExitPrice      decimal.Decimal `json:"exit_price"`
	ExitReason     ExitReason      `json:"exit_reason"`
	PartsFilled    int             `json:"parts_filled"`
	FilledFraction decimal.Decimal `json:"filled_fraction"`
	PnLPct         decimal.Decimal `json:"realized_pnl_pct"`
	PnLMoney       decimal.Decimal `json:"realized_pnl_money"`
	EntryTS        time.Time       `json:"entry_ts"`
	ExitTS         time.Time       `json:"exit_ts"`
}

// Win reports whether the short closed above water.
func (r *TradeRecord) Win() bool { return r.PnLPct.IsPositive() }

// Full reports whether every tranche was filled.
func (r *TradeRecord) Full(tranches int) bool { return r.PartsFilled == tranches }
