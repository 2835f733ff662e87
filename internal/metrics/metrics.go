// Package metrics exposes Prometheus counters for the live bot and the
// /metrics and /healthz endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"rsi-options-engine/internal/engine"
	"rsi-options-engine/internal/model"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	TicksTotal    prometheus.Counter
	BadTicks      prometheus.Counter
	FeedReconnect prometheus.Counter
	CandlesTotal  prometheus.Counter
	CandlesStored prometheus.Counter

	SignalsTotal   *prometheus.CounterVec // labels: underlying
	FillsTotal     *prometheus.CounterVec // labels: tranche
	TradesTotal    *prometheus.CounterVec // labels: reason
	ExpiredSignals prometheus.Counter
	OrderingFaults *prometheus.CounterVec // labels: leg
	OpenPositions  prometheus.Gauge
	RealizedPnL    prometheus.Gauge

	AlertsSent    *prometheus.CounterVec // labels: channel
	AlertsFailed  *prometheus.CounterVec // labels: channel
	AlertsDropped prometheus.Counter
}

// NewMetrics creates every metric and registers it on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		BadTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_bad_ticks_total",
			Help: "Feed messages that could not be parsed",
		}),
		FeedReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_feed_reconnects_total",
			Help: "Total feed reconnection attempts",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_candles_total",
			Help: "Candles closed by the per-leg pipelines",
		}),
		CandlesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_candles_stored_total",
			Help: "Candles committed to the candle store",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_signals_total",
			Help: "RSI crossings that armed the entry ladder",
		}, []string{"underlying"}),
		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_fills_total",
			Help: "Tranche fills",
		}, []string{"tranche"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_trades_total",
			Help: "Closed positions by exit reason",
		}, []string{"reason"}),
		ExpiredSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_signals_expired_total",
			Help: "Signals that ended the day without a fill",
		}),
		OrderingFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_data_ordering_faults_total",
			Help: "Legs degraded for the day by out-of-order data",
		}, []string{"leg"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_open_positions",
			Help: "Positions with at least one fill",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_realized_pnl_rupees",
			Help: "Realized P&L of positions closed since start",
		}),

		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_alerts_sent_total",
			Help: "Alerts delivered per channel",
		}, []string{"channel"}),
		AlertsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_alerts_failed_total",
			Help: "Alert deliveries that failed per channel",
		}, []string{"channel"}),
		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_alerts_dropped_total",
			Help: "Alerts dropped because the queue was full",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.BadTicks,
		m.FeedReconnect,
		m.CandlesTotal,
		m.CandlesStored,
		m.SignalsTotal,
		m.FillsTotal,
		m.TradesTotal,
		m.ExpiredSignals,
		m.OrderingFaults,
		m.OpenPositions,
		m.RealizedPnL,
		m.AlertsSent,
		m.AlertsFailed,
		m.AlertsDropped,
	)
	return m
}

// Hooks returns pipeline observers that count candles and faults.
func (m *Metrics) Hooks() engine.Hooks {
	return engine.Hooks{
		OnCandle: func(model.Candle) { m.CandlesTotal.Inc() },
		OnFault:  func(f engine.Fault) { m.OrderingFaults.WithLabelValues(f.Leg.Key()).Inc() },
	}
}

// Metrics is also a lifecycle listener. Prometheus collectors are safe for
// concurrent use, so legs may call it in parallel.

func (m *Metrics) SignalCreated(sig model.Signal) {
	m.SignalsTotal.WithLabelValues(sig.Leg.Underlying).Inc()
}

func (m *Metrics) TrancheFilled(_ model.Leg, f model.Fill, _ decimal.Decimal) {
	m.FillsTotal.WithLabelValues(model.Itoa(f.Tranche)).Inc()
}

func (m *Metrics) PositionOpened(model.Leg, model.Fill) { m.OpenPositions.Inc() }

func (m *Metrics) PositionClosed(rec model.TradeRecord) {
	m.OpenPositions.Dec()
	m.TradesTotal.WithLabelValues(string(rec.ExitReason)).Inc()
	m.RealizedPnL.Add(rec.PnLMoney.InexactFloat64())
}

func (m *Metrics) SignalExpired(model.Signal) { m.ExpiredSignals.Inc() }

func (m *Metrics) LegDegraded(model.Leg, string, error) {}
