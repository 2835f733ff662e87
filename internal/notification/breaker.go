package notification

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while a channel's breaker is rejecting sends.
var ErrBreakerOpen = errors.New("notification channel suspended")

// BreakerState is the state of a channel's breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // sends pass through
	BreakerOpen                         // sends rejected until the cool-down ends
	BreakerHalfOpen                     // one probe allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker suspends a failing channel. After maxFailures consecutive
// failures it rejects sends for coolDown, then lets one probe through; a
// successful probe closes it again.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	coolDown    time.Duration
	openedAt    time.Time
	now         func() time.Time

	OnStateChange func(from, to BreakerState)
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, coolDown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{maxFailures: maxFailures, coolDown: coolDown, now: time.Now}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.transition(BreakerHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(BreakerOpen)
		}
		return err
	}
	if b.state == BreakerHalfOpen {
		b.transition(BreakerClosed)
	}
	b.failures = 0
	return nil
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
