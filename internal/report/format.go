package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"rsi-options-engine/internal/model"
)

const rule = 60

// Header describes the run a report belongs to.
type Header struct {
	Title          string
	Period         string
	InitialCapital decimal.Decimal
	FinalCapital   decimal.Decimal
	MaxDrawdown    decimal.Decimal
	Tranches       int
}

// Write prints a summary block in the same layout for a whole run or a
// single instrument. Capital lines are skipped when h.InitialCapital is zero.
func Write(w io.Writer, h Header, s Summary) {
	line := strings.Repeat("=", rule)
	thin := strings.Repeat("-", rule)

	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "  %s\n", h.Title)
	fmt.Fprintln(w, line)
	if h.Period != "" {
		fmt.Fprintf(w, "  Period:           %s\n", h.Period)
	}
	if !h.InitialCapital.IsZero() {
		ret := h.FinalCapital.Sub(h.InitialCapital).Div(h.InitialCapital).Shift(2)
		fmt.Fprintf(w, "  Initial Capital:  Rs %14s\n", h.InitialCapital.StringFixed(2))
		fmt.Fprintf(w, "  Final Capital:    Rs %14s\n", h.FinalCapital.StringFixed(2))
		fmt.Fprintf(w, "  Return:           %17s%%\n", ret.StringFixed(2))
		fmt.Fprintf(w, "  Max Drawdown:     %17s%%\n", h.MaxDrawdown.StringFixed(2))
		fmt.Fprintln(w, thin)
	}

	fmt.Fprintf(w, "  Total Trades:     %6d\n", s.Trades)
	fmt.Fprintf(w, "  Wins:             %6d (%s%%)\n", s.Wins, s.WinRate.StringFixed(1))
	fmt.Fprintf(w, "  Losses:           %6d\n", s.Losses)
	fmt.Fprintf(w, "  Total P&L:        Rs %12s (%s%%)\n", s.TotalPnLMoney.StringFixed(2), s.TotalPnLPct.StringFixed(2))
	fmt.Fprintf(w, "  Avg P&L:          Rs %12s\n", s.AvgPnLMoney.StringFixed(2))
	fmt.Fprintf(w, "  Avg Win:          Rs %12s\n", s.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "  Avg Loss:         Rs %12s\n", s.AvgLoss.StringFixed(2))
	fmt.Fprintf(w, "  Max Win:          Rs %12s\n", s.MaxWin.StringFixed(2))
	fmt.Fprintf(w, "  Max Loss:         Rs %12s\n", s.MaxLoss.StringFixed(2))
	fmt.Fprintln(w, thin)

	fmt.Fprintf(w, "  Full Entries (%d/%d):  %4d\n", h.Tranches, h.Tranches, s.FullEntries)
	fmt.Fprintf(w, "  Partial Entries:     %4d\n", s.PartialEntries)
	fmt.Fprintf(w, "  Avg Parts Filled:    %s / %d\n", s.AvgParts.StringFixed(2), h.Tranches)
	fmt.Fprintln(w, thin)

	fmt.Fprintln(w, "  Exit Reasons:")
	reasons := make([]model.ExitReason, 0, len(s.ByReason))
	for r := range s.ByReason {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, r := range reasons {
		n := s.ByReason[r]
		pct := decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(int64(s.Trades))).Shift(2)
		fmt.Fprintf(w, "    %-20s %4d (%s%%)\n", r, n, pct.StringFixed(1))
	}
	fmt.Fprintln(w, thin)

	fmt.Fprintf(w, "  CE: %d trades | P&L: Rs %s\n", s.CallTrades, s.CallPnL.StringFixed(2))
	fmt.Fprintf(w, "  PE: %d trades | P&L: Rs %s\n", s.PutTrades, s.PutPnL.StringFixed(2))
	fmt.Fprintln(w, line)
}

// WriteInstruments prints one block per underlying.
func WriteInstruments(w io.Writer, instruments []Instrument, tranches int) {
	for _, in := range instruments {
		Write(w, Header{Title: "INSTRUMENT: " + in.Underlying, Tranches: tranches}, in.Summary)
		fmt.Fprintln(w)
	}
}
