package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/report"
)

const stampLayout = "02-Jan-2006 15:04:05"

func stamp(t time.Time) string { return t.In(markethours.IST).Format(stampLayout) }

func rupees(d decimal.Decimal) string { return "₹" + d.StringFixed(2) }

func instrument(leg model.Leg) string {
	return fmt.Sprintf("%s %s (%s, %+d)", leg.Underlying, leg.OptionType, leg.ExpiryClass, leg.StrikeOffset)
}

// SignalAlert announces a new signal with its ladder.
func SignalAlert(sig model.Signal, thresholds []decimal.Decimal, cfg *config.Strategy) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "Instrument: %s\n", instrument(sig.Leg))
	fmt.Fprintf(&b, "Base Price: %s\n", rupees(sig.BasePrice))
	fmt.Fprintf(&b, "RSI: %.2f\n", sig.RSI)
	fmt.Fprintf(&b, "Time: %s\n\nEntry Levels:\n", stamp(sig.TS))
	for i, th := range thresholds {
		fmt.Fprintf(&b, "Part %d (%s%%): %s (+%s%%)\n", i+1,
			cfg.Fractions[i].StringFixed(2), rupees(th), cfg.EntryLevels[i].String())
	}
	fmt.Fprintf(&b, "\nPosition Type: SELL %s", sig.Leg.OptionType)
	return Alert{
		Level:   AlertInfo,
		Kind:    KindSignal,
		Leg:     sig.Leg.Key(),
		Title:   "NEW SIGNAL GENERATED",
		Message: b.String(),
		TS:      sig.TS,
	}
}

// EntryAlert announces one tranche fill.
func EntryAlert(leg model.Leg, f model.Fill, avg decimal.Decimal) Alert {
	msg := fmt.Sprintf("Instrument: %s\nEntry Price: %s\nQuantity: %s%% of capital\nAvg Entry: %s\nTime: %s\n\nAction: SELL at %s",
		instrument(leg), rupees(f.Price), f.Fraction.StringFixed(2), rupees(avg), stamp(f.TS), rupees(f.Price))
	return Alert{
		Level:   AlertInfo,
		Kind:    KindEntry,
		Leg:     leg.Key(),
		Title:   fmt.Sprintf("ENTRY SIGNAL - PART %d", f.Tranche),
		Message: msg,
		TS:      f.TS,
	}
}

// CloseAlert announces a closed trade.
func CloseAlert(rec model.TradeRecord) Alert {
	a := Alert{Leg: rec.Leg.Key(), TS: rec.ExitTS}
	result := "Profit: +" + rec.PnLPct.StringFixed(2) + "%"
	if rec.PnLPct.IsNegative() {
		result = "Loss: " + rec.PnLPct.StringFixed(2) + "%"
	}
	switch rec.ExitReason {
	case model.ExitTarget:
		a.Level, a.Kind, a.Title = AlertInfo, KindTarget, "TARGET HIT - PROFIT BOOKED"
	case model.ExitStopLoss:
		a.Level, a.Kind, a.Title = AlertWarning, KindStopLoss, "STOP LOSS HIT"
	default:
		a.Level, a.Kind, a.Title = AlertInfo, KindEOD, "FORCE CLOSE - END OF DAY"
	}
	a.Message = fmt.Sprintf("Instrument: %s\nParts Filled: %d\nAvg Entry: %s\nExit Price: %s\n%s (%s)\nTime: %s",
		instrument(rec.Leg), rec.PartsFilled, rupees(rec.AvgEntry), rupees(rec.ExitPrice),
		result, rupees(rec.PnLMoney), stamp(rec.ExitTS))
	return a
}

// ExpiredAlert reports a signal that ended the day without a fill.
func ExpiredAlert(sig model.Signal) Alert {
	return Alert{
		Level:   AlertInfo,
		Kind:    KindExpired,
		Leg:     sig.Leg.Key(),
		Title:   "SIGNAL EXPIRED",
		Message: fmt.Sprintf("Instrument: %s\nBase Price: %s\nNo tranche reached before the cutoff", instrument(sig.Leg), rupees(sig.BasePrice)),
		TS:      sig.TS,
	}
}

// DegradedAlert reports a leg taken out of service for the day.
func DegradedAlert(leg model.Leg, day string, err error, now time.Time) Alert {
	return Alert{
		Level:   AlertCritical,
		Kind:    KindDegraded,
		Leg:     leg.Key(),
		Title:   "LEG DEGRADED",
		Message: fmt.Sprintf("Instrument: %s\nDay: %s\nReason: %v\nNo new signals for this leg until the next session", instrument(leg), day, err),
		TS:      now,
	}
}

// StartedAlert lists the monitored legs and the key parameters.
func StartedAlert(legs []model.Leg, cfg *config.Strategy, now time.Time) Alert {
	names := make([]string, len(legs))
	for i, l := range legs {
		names[i] = l.Key()
	}
	msg := fmt.Sprintf("Instruments: %s\nRSI Length: %d\nRSI Threshold: %.0f\nStop Loss: %s%%\nTarget: %s%%\nWindow: %s-%s IST\nStarted At: %s\n\nMonitoring for RSI signals...",
		strings.Join(names, ", "), cfg.RSIPeriod, cfg.RSIThreshold, cfg.StopLossPct, cfg.TargetPct,
		cfg.Window.Start, cfg.Window.End, stamp(now))
	return Alert{Level: AlertInfo, Kind: KindStarted, Title: "TRADING BOT STARTED", Message: msg, TS: now}
}

// StoppedAlert reports a shutdown with the session's realized P&L.
func StoppedAlert(trades int, realized decimal.Decimal, now time.Time) Alert {
	msg := fmt.Sprintf("Stopped At: %s\nTrades: %d\nRealized P&L: %s", stamp(now), trades, rupees(realized))
	return Alert{Level: AlertInfo, Kind: KindStopped, Title: "TRADING BOT STOPPED", Message: msg, TS: now}
}

// ErrorAlert reports an operational error.
func ErrorAlert(errType string, err error, now time.Time) Alert {
	msg := fmt.Sprintf("Type: %s\nMessage: %v\nTime: %s\n\nPlease check the bot!", errType, err, stamp(now))
	return Alert{Level: AlertCritical, Kind: KindError, Title: "ERROR ALERT", Message: msg, TS: now}
}

// SummaryAlert reports one trading day.
func SummaryAlert(day string, signals int, s report.Summary, now time.Time) Alert {
	msg := fmt.Sprintf("Total Signals: %d\nTrades: %d\nProfitable Trades: %d\nLoss Trades: %d\nTotal P&L: %s%% (%s)\nWin Rate: %s%%",
		signals, s.Trades, s.Wins, s.Losses, s.TotalPnLPct.StringFixed(2), rupees(s.TotalPnLMoney), s.WinRate.StringFixed(2))
	return Alert{Level: AlertInfo, Kind: KindSummary, Title: "DAILY SUMMARY - " + day, Message: msg, TS: now}
}
