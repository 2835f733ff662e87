package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"rsi-options-engine/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(under string, ot model.OptionType, reason model.ExitReason, parts int, pct, money string) model.TradeRecord {
	return model.TradeRecord{
		ID:          under + string(ot) + string(reason),
		Leg:         model.Leg{Underlying: under, OptionType: ot, ExpiryClass: model.Weekly},
		Day:         "2024-03-05",
		ExitReason:  reason,
		PartsFilled: parts,
		PnLPct:      d(pct),
		PnLMoney:    d(money),
		ExitTS:      time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
	}
}

var sample = []model.TradeRecord{
	trade("NIFTY", model.Call, model.ExitTarget, 3, "10", "10000"),
	trade("NIFTY", model.Put, model.ExitStopLoss, 1, "-20", "-6666"),
	trade("BANKNIFTY", model.Call, model.ExitEOD, 2, "2.5", "1666.5"),
	trade("BANKNIFTY", model.Put, model.ExitEOD, 3, "0", "0"),
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample, 3)

	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, "50", s.WinRate.String())
	assert.Equal(t, "-7.5", s.TotalPnLPct.String())
	assert.Equal(t, "-1.875", s.AvgPnLPct.String())
	assert.Equal(t, "5000.5", s.TotalPnLMoney.String())
	assert.Equal(t, "1250.13", s.AvgPnLMoney.String())
	assert.Equal(t, "5833.25", s.AvgWin.String())
	assert.Equal(t, "-6666", s.AvgLoss.String())
	assert.Equal(t, "10000", s.MaxWin.String())
	assert.Equal(t, "-6666", s.MaxLoss.String())
	assert.Equal(t, 2, s.ByReason[model.ExitEOD])
	assert.Equal(t, 2, s.CallTrades)
	assert.Equal(t, "11666.5", s.CallPnL.String())
	assert.Equal(t, "-6666", s.PutPnL.String())
	assert.Equal(t, 2, s.FullEntries)
	assert.Equal(t, 2, s.PartialEntries)
	assert.Equal(t, "2.25", s.AvgParts.String())
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 3)
	assert.Equal(t, 0, s.Trades)
	assert.True(t, s.WinRate.IsZero())

	var buf bytes.Buffer
	Write(&buf, Header{Title: "EMPTY", Tranches: 3}, s)
	assert.True(t, strings.Contains(buf.String(), "Total Trades:          0"))
}

func TestByInstrument(t *testing.T) {
	ins := ByInstrument(sample, 3)
	assert.Equal(t, 2, len(ins))
	assert.Equal(t, "BANKNIFTY", ins[0].Underlying)
	assert.Equal(t, 2, ins[0].Trades)
	assert.Equal(t, "NIFTY", ins[1].Underlying)
	assert.Equal(t, "3334", ins[1].TotalPnLMoney.String())
}

func TestWrite_Layout(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, Header{
		Title:          "BACKTEST REPORT",
		Period:         "2024-03-05 to 2024-03-05",
		InitialCapital: d("1000000"),
		FinalCapital:   d("1005000.5"),
		MaxDrawdown:    d("0.66"),
		Tranches:       3,
	}, Summarize(sample, 3))
	out := buf.String()

	for _, want := range []string{
		"BACKTEST REPORT",
		"Return:                        0.50%",
		"Wins:                  2 (50.0%)",
		"Full Entries (3/3):     2",
		"eod                     2 (50.0%)",
		"CE: 2 trades | P&L: Rs 11666.50",
	} {
		assert.True(t, strings.Contains(out, want))
	}
}

func TestJSONLSink_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	for _, tr := range sample[:2] {
		assert.NoError(t, sink.Record(context.Background(), tr))
	}
	assert.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 2, len(lines))
	assert.Equal(t, "stop_loss", gjson.Get(lines[1], "exit_reason").String())
	assert.Equal(t, "-20", gjson.Get(lines[1], "realized_pnl_pct").String())

	back, err := ReadJSONL(strings.NewReader(buf.String()))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(back))
	assert.Equal(t, sample[0].ID, back[0].ID)
	assert.True(t, back[1].PnLMoney.Equal(d("-6666")))
}
