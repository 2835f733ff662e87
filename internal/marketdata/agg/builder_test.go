package agg

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"rsi-options-engine/internal/model"
)

func TestBuilder_CandleCountMatchesBuckets(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC)
	b := NewBuilder(ce, time.Minute)

	buckets := map[int64]bool{}
	var candles []model.Candle
	ts := start
	for i := 0; i < 500; i++ {
		ts = ts.Add(time.Duration(rng.Intn(40)) * time.Second)
		buckets[ts.Truncate(time.Minute).Unix()] = true
		c, ok, err := b.Ingest(model.Tick{Leg: ce, TS: ts, Price: 10000 + int64(rng.Intn(2000))})
		assert.NoError(t, err)
		if ok {
			candles = append(candles, c)
		}
	}
	if c, ok := b.Flush(); ok {
		candles = append(candles, c)
	}

	assert.Equal(t, len(buckets), len(candles))
	for _, c := range candles {
		assert.True(t, c.High >= c.Open && c.High >= c.Close)
		assert.True(t, c.Low <= c.Open && c.Low <= c.Close)
	}
}

func TestBuilder_RejectsNonMonotonic(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 30, 0, time.UTC)
	b := NewBuilder(ce, time.Minute)

	_, _, err := b.Ingest(model.Tick{Leg: ce, TS: now, Price: 100})
	assert.NoError(t, err)

	// equal timestamps are fine
	_, _, err = b.Ingest(model.Tick{Leg: ce, TS: now, Price: 101})
	assert.NoError(t, err)

	_, _, err = b.Ingest(model.Tick{Leg: ce, TS: now.Add(-time.Millisecond), Price: 99})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataOrdering))

	var doe *DataOrderingError
	assert.True(t, errors.As(err, &doe))
	assert.Equal(t, ce.Key(), doe.Leg)

	// rejected tick left the open candle untouched
	c, ok := b.Flush()
	assert.True(t, ok)
	assert.Equal(t, int64(101), c.Close)
	assert.Equal(t, 2, c.Ticks)
}

func TestBuilder_PassThroughSealsOpenCandle(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	b := NewBuilder(ce, time.Minute)

	_, ok, err := b.PassThrough(model.Candle{Leg: ce, TS: now, Open: 1, High: 2, Low: 1, Close: 2})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = b.Ingest(model.Tick{Leg: ce, TS: now.Add(time.Minute), Price: 5})
	assert.NoError(t, err)

	sealed, ok, err := b.PassThrough(model.Candle{Leg: ce, TS: now.Add(2 * time.Minute)})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), sealed.Close)

	_, ok = b.Flush()
	assert.False(t, ok)

	_, _, err = b.PassThrough(model.Candle{Leg: ce, TS: now})
	assert.True(t, errors.Is(err, ErrDataOrdering))
}
