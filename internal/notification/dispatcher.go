package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/report"
	"rsi-options-engine/internal/strategy"
)

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
	breakerFailures    = 5
	breakerCoolDown    = time.Minute
)

type channel struct {
	name    string
	n       Notifier
	breaker *Breaker
}

// Dispatcher turns lifecycle transitions into alerts and delivers them to
// every registered channel from a background goroutine. Enqueueing never
// blocks: when the queue is full the alert is dropped and OnDrop is called.
type Dispatcher struct {
	cfg *config.Strategy
	log zerolog.Logger
	now func() time.Time

	channels    []channel
	queue       chan Alert
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	countMu sync.Mutex
	signals map[string]int // signals announced per day

	OnDrop    func(Alert)
	OnFailure func(channel string, err error)
	OnSent    func(channel string)
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(cfg *config.Strategy, log zerolog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		cfg:         cfg,
		log:         log.With().Str("component", "dispatcher").Logger(),
		now:         time.Now,
		queue:       make(chan Alert, queueSize),
		sendTimeout: defaultSendTimeout,
		done:        make(chan struct{}),
		signals:     make(map[string]int),
	}
}

// Add registers a channel. Call before Run.
func (d *Dispatcher) Add(name string, n Notifier) {
	b := NewBreaker(breakerFailures, breakerCoolDown)
	b.OnStateChange = func(from, to BreakerState) {
		d.log.Warn().Str("channel", name).Str("from", from.String()).Str("to", to.String()).Msg("channel breaker")
	}
	d.channels = append(d.channels, channel{name: name, n: n, breaker: b})
}

// Channels returns the registered channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, c := range d.channels {
		names[i] = c.name
	}
	return names
}

// Enqueue queues an alert without blocking.
func (d *Dispatcher) Enqueue(a Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- a:
		return true
	default:
		d.log.Warn().Str("kind", string(a.Kind)).Str("leg", a.Leg).Msg("alert queue full, dropping")
		if d.OnDrop != nil {
			d.OnDrop(a)
		}
		return false
	}
}

// Run delivers queued alerts until Close is called and the queue drains.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for a := range d.queue {
		d.deliver(ctx, a)
	}
}

// Close stops intake and waits for Run to deliver what is queued.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a Alert) {
	for _, c := range d.channels {
		err := c.breaker.Do(func() error {
			sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			defer cancel()
			return c.n.Send(sctx, a)
		})
		if err != nil {
			d.log.Error().Err(err).Str("channel", c.name).Str("kind", string(a.Kind)).Msg("alert delivery failed")
			if d.OnFailure != nil {
				d.OnFailure(c.name, err)
			}
			continue
		}
		if d.OnSent != nil {
			d.OnSent(c.name)
		}
	}
}

func (d *Dispatcher) SignalCreated(sig model.Signal) {
	d.countMu.Lock()
	d.signals[sig.Day]++
	d.countMu.Unlock()
	ladder := strategy.NewLadder(sig.BasePrice, d.cfg)
	d.Enqueue(SignalAlert(sig, ladder.Thresholds(), d.cfg))
}

func (d *Dispatcher) TrancheFilled(leg model.Leg, f model.Fill, avg decimal.Decimal) {
	d.Enqueue(EntryAlert(leg, f, avg))
}

// PositionOpened is covered by the first TrancheFilled alert.
func (d *Dispatcher) PositionOpened(model.Leg, model.Fill) {}

func (d *Dispatcher) PositionClosed(rec model.TradeRecord) { d.Enqueue(CloseAlert(rec)) }

func (d *Dispatcher) SignalExpired(sig model.Signal) { d.Enqueue(ExpiredAlert(sig)) }

func (d *Dispatcher) LegDegraded(leg model.Leg, day string, err error) {
	d.Enqueue(DegradedAlert(leg, day, err, d.now()))
}

// Signals returns how many signals were announced on day.
func (d *Dispatcher) Signals(day string) int {
	d.countMu.Lock()
	defer d.countMu.Unlock()
	return d.signals[day]
}

// BotStarted announces startup.
func (d *Dispatcher) BotStarted(legs []model.Leg) { d.Enqueue(StartedAlert(legs, d.cfg, d.now())) }

// BotStopped announces shutdown.
func (d *Dispatcher) BotStopped(trades int, realized decimal.Decimal) {
	d.Enqueue(StoppedAlert(trades, realized, d.now()))
}

// Error reports an operational error.
func (d *Dispatcher) Error(errType string, err error) { d.Enqueue(ErrorAlert(errType, err, d.now())) }

// DailySummary reports the day's closed trades.
func (d *Dispatcher) DailySummary(day string, trades []model.TradeRecord) {
	s := report.Summarize(trades, d.cfg.Tranches())
	d.Enqueue(SummaryAlert(day, d.Signals(day), s, d.now()))
}
