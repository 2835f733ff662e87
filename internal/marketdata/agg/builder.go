package agg

import (
	"errors"
	"fmt"
	"time"

	"rsi-options-engine/internal/model"
)

// ErrDataOrdering is matched by every DataOrderingError.
var ErrDataOrdering = errors.New("non-monotonic timestamp")

// DataOrderingError reports an observation older than the last one seen for its leg.
type DataOrderingError struct {
	Leg  string
	Prev time.Time
	Got  time.Time
}

func (e *DataOrderingError) Error() string {
	return fmt.Sprintf("leg %s: %v: got %s after %s", e.Leg, ErrDataOrdering,
		e.Got.Format(time.RFC3339Nano), e.Prev.Format(time.RFC3339Nano))
}

func (e *DataOrderingError) Unwrap() error { return ErrDataOrdering }

// Builder turns one leg's ordered observations into fixed-interval candles.
// It is not safe for concurrent use; each leg owns its own Builder.
type Builder struct {
	leg      model.Leg
	interval int64 // nanoseconds

	open   bool
	bucket int64
	candle model.Candle

	seen bool
	last time.Time
}

// NewBuilder creates a candle builder for leg with the given bucket width.
func NewBuilder(leg model.Leg, interval time.Duration) *Builder {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Builder{leg: leg, interval: int64(interval)}
}

// Interval returns the bucket width.
func (b *Builder) Interval() time.Duration { return time.Duration(b.interval) }

// Last returns the timestamp of the most recent accepted observation.
func (b *Builder) Last() time.Time { return b.last }

// Check reports whether ts would be accepted without recording it.
func (b *Builder) Check(ts time.Time) error {
	if b.seen && ts.Before(b.last) {
		return &DataOrderingError{Leg: b.leg.Key(), Prev: b.last, Got: ts}
	}
	return nil
}

// Advance records ts as the latest observation time, rejecting regressions.
func (b *Builder) Advance(ts time.Time) error {
	if err := b.Check(ts); err != nil {
		return err
	}
	b.seen = true
	b.last = ts
	return nil
}

func (b *Builder) bucketOf(ts time.Time) int64 {
	n := ts.UnixNano()
	return n - n%b.interval
}

// Ingest folds a tick into the open candle. When the tick belongs to a later
// bucket the previously open candle is sealed and returned.
func (b *Builder) Ingest(tick model.Tick) (model.Candle, bool, error) {
	if err := b.Advance(tick.TS); err != nil {
		return model.Candle{}, false, err
	}
	bucket := b.bucketOf(tick.TS)

	var sealed model.Candle
	var ok bool
	if b.open && bucket > b.bucket {
		sealed, ok = b.candle, true
		b.open = false
	}

	if !b.open {
		b.open = true
		b.bucket = bucket
		b.candle = model.Candle{
			Leg:    b.leg,
			TS:     time.Unix(0, bucket).In(tick.TS.Location()),
			Open:   tick.Price,
			High:   tick.Price,
			Low:    tick.Price,
			Close:  tick.Price,
			Volume: tick.Volume,
			OI:     tick.OI,
			IV:     tick.IV,
			Ticks:  1,
		}
		return sealed, ok, nil
	}

	// Same bucket: update OHLC
	c := &b.candle
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.Volume += tick.Volume
	if tick.OI != 0 {
		c.OI = tick.OI
	}
	if tick.IV != 0 {
		c.IV = tick.IV
	}
	c.Ticks++
	return sealed, ok, nil
}

// PassThrough accepts a pre-built candle as already sealed. Any candle still
// open from ticks is sealed first and returned.
func (b *Builder) PassThrough(c model.Candle) (model.Candle, bool, error) {
	if err := b.Advance(c.TS); err != nil {
		return model.Candle{}, false, err
	}
	sealed, ok := b.Flush()
	return sealed, ok, nil
}

// Flush force-seals the open candle, if any.
func (b *Builder) Flush() (model.Candle, bool) {
	if !b.open {
		return model.Candle{}, false
	}
	b.open = false
	return b.candle, true
}
