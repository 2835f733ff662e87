package notification

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker(max, time.Minute)
	b.now = clk.now
	return b, clk
}

var errFail = errors.New("fail")

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3)
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != BreakerOpen {
		t.Errorf("expected open after 3 failures, got %v", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) || called {
		t.Errorf("expected rejection without a call, got %v called=%v", err, called)
	}
}

func TestBreaker_ProbeSucceeds(t *testing.T) {
	b, clk := newTestBreaker(2)
	var transitions []string
	b.OnStateChange = func(from, to BreakerState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	b.Do(func() error { return errFail })
	b.Do(func() error { return errFail })

	clk.advance(time.Minute)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after probe, got %v", b.State())
	}
	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_ProbeFailsReopens(t *testing.T) {
	b, clk := newTestBreaker(2)
	b.Do(func() error { return errFail })
	b.Do(func() error { return errFail })

	clk.advance(2 * time.Minute)
	b.Do(func() error { return errFail })
	if b.State() != BreakerOpen {
		t.Errorf("expected open after failed probe, got %v", b.State())
	}
	clk.advance(30 * time.Second)
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected cool-down to restart, got %v", err)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2)
	b.Do(func() error { return errFail })
	b.Do(func() error { return nil })
	b.Do(func() error { return errFail })
	if b.State() != BreakerClosed {
		t.Errorf("non-consecutive failures should not open, got %v", b.State())
	}
}
