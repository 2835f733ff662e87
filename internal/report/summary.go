// Package report aggregates closed trades into run and per-instrument
// statistics and writes trade streams.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"rsi-options-engine/internal/model"
)

// Summary aggregates a set of closed trades. Money figures are rupees,
// percentages are percent.
type Summary struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	WinRate     decimal.Decimal `json:"win_rate"`
	TotalPnLPct decimal.Decimal `json:"total_pnl_pct"`
	AvgPnLPct   decimal.Decimal `json:"avg_pnl_pct"`

	TotalPnLMoney decimal.Decimal `json:"total_pnl_money"`
	AvgPnLMoney   decimal.Decimal `json:"avg_pnl_money"`
	AvgWin        decimal.Decimal `json:"avg_win"`
	AvgLoss       decimal.Decimal `json:"avg_loss"`
	MaxWin        decimal.Decimal `json:"max_win"`
	MaxLoss       decimal.Decimal `json:"max_loss"`

	ByReason map[model.ExitReason]int `json:"by_reason"`

	CallTrades int             `json:"ce_trades"`
	CallPnL    decimal.Decimal `json:"ce_pnl"`
	PutTrades  int             `json:"pe_trades"`
	PutPnL     decimal.Decimal `json:"pe_pnl"`

	FullEntries    int             `json:"full_entries"`
	PartialEntries int             `json:"partial_entries"`
	AvgParts       decimal.Decimal `json:"avg_parts"`
}

// Instrument is the summary of one underlying.
type Instrument struct {
	Underlying string `json:"underlying"`
	Summary
}

// Summarize computes statistics over trades. tranches is the ladder size
// used to classify full entries.
func Summarize(trades []model.TradeRecord, tranches int) Summary {
	s := Summary{ByReason: make(map[model.ExitReason]int)}
	var winSum, lossSum decimal.Decimal
	parts := 0

	for i, tr := range trades {
		s.Trades++
		s.ByReason[tr.ExitReason]++
		s.TotalPnLPct = s.TotalPnLPct.Add(tr.PnLPct)
		s.TotalPnLMoney = s.TotalPnLMoney.Add(tr.PnLMoney)
		parts += tr.PartsFilled

		switch {
		case tr.PnLPct.IsPositive():
			s.Wins++
			winSum = winSum.Add(tr.PnLMoney)
		case tr.PnLPct.IsNegative():
			s.Losses++
			lossSum = lossSum.Add(tr.PnLMoney)
		}

		if i == 0 || tr.PnLMoney.GreaterThan(s.MaxWin) {
			s.MaxWin = tr.PnLMoney
		}
		if i == 0 || tr.PnLMoney.LessThan(s.MaxLoss) {
			s.MaxLoss = tr.PnLMoney
		}

		if tr.Leg.OptionType == model.Call {
			s.CallTrades++
			s.CallPnL = s.CallPnL.Add(tr.PnLMoney)
		} else {
			s.PutTrades++
			s.PutPnL = s.PutPnL.Add(tr.PnLMoney)
		}

		if tr.Full(tranches) {
			s.FullEntries++
		} else {
			s.PartialEntries++
		}
	}

	if s.Trades == 0 {
		return s
	}
	n := decimal.NewFromInt(int64(s.Trades))
	s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(n).Shift(2).Round(2)
	s.AvgPnLPct = s.TotalPnLPct.Div(n).Round(4)
	s.AvgPnLMoney = s.TotalPnLMoney.Div(n).Round(2)
	s.AvgParts = decimal.NewFromInt(int64(parts)).Div(n).Round(2)
	if s.Wins > 0 {
		s.AvgWin = winSum.Div(decimal.NewFromInt(int64(s.Wins))).Round(2)
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(s.Losses))).Round(2)
	}
	return s
}

// ByInstrument summarizes each underlying separately, sorted by name.
func ByInstrument(trades []model.TradeRecord, tranches int) []Instrument {
	groups := make(map[string][]model.TradeRecord)
	for _, tr := range trades {
		groups[tr.Leg.Underlying] = append(groups[tr.Leg.Underlying], tr)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Instrument, 0, len(names))
	for _, name := range names {
		out = append(out, Instrument{Underlying: name, Summary: Summarize(groups[name], tranches)})
	}
	return out
}

// ForDay keeps the trades of one trading day.
func ForDay(trades []model.TradeRecord, day string) []model.TradeRecord {
	var out []model.TradeRecord
	for _, tr := range trades {
		if tr.Day == day {
			out = append(out, tr)
		}
	}
	return out
}
