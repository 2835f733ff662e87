// Package strategy implements the short-premium position lifecycle: the
// staggered entry ladder, the target/stop exit rules and the per-leg state
// machine that composes them.
package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/model"
)

// State is the lifecycle state of a leg's position.
type State int

const (
	Idle State = iota
	Signaled
	Entering
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Signaled:
		return "SIGNALED"
	case Entering:
		return "ENTERING"
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// tradeNamespace scopes name-based trade IDs.
var tradeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rsi-options-engine/trade"))

// TradeID derives a stable ID from the leg, day and signal time.
func TradeID(leg model.Leg, day string, signalTS time.Time) string {
	name := leg.Key() + "|" + day + "|" + signalTS.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(tradeNamespace, []byte(name)).String()
}

// Machine runs one leg's signal-to-trade cycle: at most one signal, one
// ladder and one exit per trading day.
type Machine struct {
	leg      model.Leg
	cfg      *config.Strategy
	exit     Exit
	capital  decimal.Decimal
	listener model.LifecycleListener

	state  State
	armed  bool
	signal model.Signal
	ladder *Ladder
}

// NewMachine creates an armed, idle machine for leg.
func NewMachine(leg model.Leg, cfg *config.Strategy, listener model.LifecycleListener) *Machine {
	if listener == nil {
		listener = model.NopListener{}
	}
	return &Machine{
		leg:      leg,
		cfg:      cfg,
		exit:     NewExit(cfg),
		capital:  cfg.CapitalPerPosition,
		listener: listener,
		state:    Idle,
		armed:    true,
	}
}

func (m *Machine) State() State { return m.state }

// Armed reports whether a signal would still be accepted today.
func (m *Machine) Armed() bool { return m.armed }

// Signal returns the active signal, if the machine is past IDLE.
func (m *Machine) Signal() (model.Signal, bool) {
	if m.ladder == nil {
		return model.Signal{}, false
	}
	return m.signal, true
}

// Ladder exposes the active ladder, nil when idle.
func (m *Machine) Ladder() *Ladder { return m.ladder }

// OnSignal starts a cycle. Rejected unless idle and still armed for the day.
func (m *Machine) OnSignal(sig model.Signal) bool {
	if m.state != Idle || !m.armed {
		return false
	}
	m.armed = false
	m.signal = sig
	m.ladder = NewLadder(sig.BasePrice, m.cfg)
	m.state = Signaled
	m.listener.SignalCreated(sig)
	return true
}

// OnPrice feeds one price observation. Exits are checked against the
// average before this price's fills, then the ladder runs when entries are
// allowed, then exits are checked again against the new average.
func (m *Machine) OnPrice(price decimal.Decimal, ts time.Time, allowEntries bool) (model.TradeRecord, bool) {
	switch m.state {
	case Signaled:
		m.state = Entering
	case Entering, Open:
	default:
		return model.TradeRecord{}, false
	}

	if m.state == Open {
		if reason, ok := m.exit.Check(m.ladder.AverageEntry(), price); ok {
			return m.close(price, ts, reason), true
		}
	}
	if !allowEntries {
		return model.TradeRecord{}, false
	}

	fills := m.ladder.Observe(price, ts)
	if len(fills) == 0 {
		return model.TradeRecord{}, false
	}
	for _, f := range fills {
		if m.state != Open {
			m.state = Open
			m.listener.PositionOpened(m.leg, f)
		}
		m.listener.TrancheFilled(m.leg, f, m.ladder.AverageEntry())
	}
	if reason, ok := m.exit.Check(m.ladder.AverageEntry(), price); ok {
		return m.close(price, ts, reason), true
	}
	return model.TradeRecord{}, false
}

// ForceClose ends the cycle at the cutoff. A position with fills closes at
// price with reason eod; a signal without fills expires with no record.
func (m *Machine) ForceClose(price decimal.Decimal, ts time.Time) (model.TradeRecord, bool) {
	switch m.state {
	case Open:
		return m.close(price, ts, model.ExitEOD), true
	case Signaled, Entering:
		m.listener.SignalExpired(m.signal)
		m.finish()
	}
	return model.TradeRecord{}, false
}

// ResetDay re-arms the machine for a new trading day. Any cycle still
// running is dropped; callers force-close first.
func (m *Machine) ResetDay() {
	m.state = Idle
	m.armed = true
	m.ladder = nil
	m.signal = model.Signal{}
}

func (m *Machine) close(exitPrice decimal.Decimal, ts time.Time, reason model.ExitReason) model.TradeRecord {
	fills := m.ladder.Fills()
	avg := m.ladder.AverageEntry()
	filled := m.ladder.FilledFraction()
	pct, money := PnL(avg, exitPrice, filled, m.capital)

	rec := model.TradeRecord{
		ID:             TradeID(m.leg, m.signal.Day, m.signal.TS),
		Leg:            m.leg,
		Day:            m.signal.Day,
		Signal:         m.signal,
		Entries:        fills,
		AvgEntry:       avg,
		ExitPrice:      exitPrice,
		ExitReason:     reason,
		PartsFilled:    len(fills),
		FilledFraction: filled,
		PnLPct:         pct,
		PnLMoney:       money,
		EntryTS:        fills[0].TS,
		ExitTS:         ts,
	}
	m.state = Closed
	m.listener.PositionClosed(rec)
	m.finish()
	return rec
}

// finish returns to IDLE without re-arming.
func (m *Machine) finish() {
	m.state = Idle
	m.ladder = nil
}
