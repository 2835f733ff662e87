package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/portfolio"
)

// ErrSessionClosed is returned by Submit after Shutdown.
var ErrSessionClosed = errors.New("session closed")

const (
	intakeBuffer = 4096
	legBuffer    = 1024
)

// Session runs the engine against a live feed. Each leg gets its own
// goroutine fed by a router. Closed trades are booked into the ledger by a
// single collector and handed to a sink writer through an unbounded queue,
// so legs never wait on storage.
type Session struct {
	eng    *Engine
	sinks  []model.TradeSink
	ledger *portfolio.Ledger

	startOnce sync.Once

	mu     sync.RWMutex
	closed bool
	in     chan model.Event

	workers map[string]*worker
	wg      sync.WaitGroup
	records chan model.TradeRecord

	collectorDone chan struct{}

	qmu     sync.Mutex
	pending []model.TradeRecord
	qclosed bool
	wake    chan struct{}

	sinksDone chan struct{}

	events     int
	trades     []model.TradeRecord
	sinkErrors int
}

type worker struct {
	runner *LegRunner
	in     chan model.Event
}

// broadcast is a heartbeat for every leg.
type broadcast struct{ ts time.Time }

func (b broadcast) EventLeg() model.Leg { return model.Leg{} }
func (b broadcast) EventTime() time.Time { return b.ts }

// NewSession prepares a live session. legs are started eagerly so that
// heartbeats reach them before their first tick; unknown legs are added on
// first sight.
func (e *Engine) NewSession(legs []model.Leg, sinks ...model.TradeSink) *Session {
	s := &Session{
		eng:           e,
		sinks:         sinks,
		ledger:        portfolio.NewLedger(e.cfg.InitialCapital, e.cfg.CapitalPerPosition),
		in:            make(chan model.Event, intakeBuffer),
		workers:       make(map[string]*worker),
		records:       make(chan model.TradeRecord, legBuffer),
		collectorDone: make(chan struct{}),
		wake:          make(chan struct{}, 1),
		sinksDone:     make(chan struct{}),
	}
	for _, leg := range legs {
		s.worker(leg)
	}
	return s
}

// Ledger exposes the live capital ledger.
func (s *Session) Ledger() *portfolio.Ledger { return s.ledger }

// Start launches the router, the collector and the sink writer. Sink writes
// use a context that outlives ctx so that shutdown can still persist the
// final closes. Calls after the first are no-ops.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.route()
		go s.collect()
		go s.writeSinks(context.WithoutCancel(ctx))
	})
}

// Submit hands an event to the session. It blocks while the intake is full.
func (s *Session) Submit(ctx context.Context, ev model.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.in <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Heartbeat advances every leg's clock to ts. Used by the scheduler to
// force the cutoff when a leg's feed is quiet.
func (s *Session) Heartbeat(ctx context.Context, ts time.Time) error {
	return s.Submit(ctx, broadcast{ts: ts})
}

// Shutdown stops intake, lets every leg close out against its last known
// price, waits for the collector and the sinks and returns the session
// result. A session that was never started is started first so its legs
// still wind down.
func (s *Session) Shutdown(ctx context.Context) (*Result, error) {
	s.Start(context.Background())

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	s.mu.Unlock()

	for _, done := range []chan struct{}{s.collectorDone, s.sinksDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res := &Result{
		Trades: s.trades,
		Events: s.events,
		Ledger: s.ledger,
	}
	for _, w := range s.workers {
		res.Legs = append(res.Legs, w.runner.Leg())
		res.Faults = append(res.Faults, w.runner.Faults()...)
	}
	sortTrades(res.Trades)
	sortLegs(res.Legs)

	s.eng.log.Info().
		Int("events", res.Events).
		Int("trades", len(res.Trades)).
		Int("sink_errors", s.sinkErrors).
		Str("equity", s.ledger.Equity().String()).
		Msg("session shut down")
	return res, nil
}

// worker returns the leg's worker, starting it if needed. Only the router
// and NewSession call it.
func (s *Session) worker(leg model.Leg) *worker {
	key := leg.Key()
	if w, ok := s.workers[key]; ok {
		return w
	}
	w := &worker{
		runner: s.eng.newRunner(leg),
		in:     make(chan model.Event, legBuffer),
	}
	s.workers[key] = w
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range w.in {
			for _, rec := range w.runner.Process(ev) {
				s.records <- rec
			}
		}
		for _, rec := range w.runner.Finish() {
			s.records <- rec
		}
	}()
	return w
}

func (s *Session) route() {
	for ev := range s.in {
		if b, ok := ev.(broadcast); ok {
			for _, w := range s.workers {
				w.in <- model.Heartbeat{Leg: w.runner.Leg(), TS: b.ts}
			}
			continue
		}
		s.events++
		s.worker(ev.EventLeg()).in <- ev
	}
	for _, w := range s.workers {
		close(w.in)
	}
	s.wg.Wait()
	close(s.records)
}

func (s *Session) collect() {
	defer close(s.collectorDone)
	defer s.enqueueClose()
	for rec := range s.records {
		s.ledger.Apply(rec)
		s.trades = append(s.trades, rec)
		if len(s.sinks) > 0 {
			s.enqueue(rec)
		}
	}
}

func (s *Session) enqueue(rec model.TradeRecord) {
	s.qmu.Lock()
	s.pending = append(s.pending, rec)
	s.qmu.Unlock()
	s.notify()
}

func (s *Session) enqueueClose() {
	s.qmu.Lock()
	s.qclosed = true
	s.qmu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// writeSinks drains the queue in order until the collector is done.
func (s *Session) writeSinks(ctx context.Context) {
	defer close(s.sinksDone)
	for {
		s.qmu.Lock()
		batch, done := s.pending, s.qclosed
		s.pending = nil
		s.qmu.Unlock()

		for _, rec := range batch {
			for _, sink := range s.sinks {
				if err := sink.Record(ctx, rec); err != nil {
					s.sinkErrors++
					s.eng.log.Error().Err(err).Str("trade_id", rec.ID).Msg("trade sink write failed")
				}
			}
		}
		if len(batch) > 0 {
			continue
		}
		if done {
			return
		}
		<-s.wake
	}
}

func sortLegs(legs []model.Leg) {
	sort.Slice(legs, func(i, j int) bool { return legs[i].Key() < legs[j].Key() })
}
