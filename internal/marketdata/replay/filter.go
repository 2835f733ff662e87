package replay

import (
	"strings"
	"time"

	"rsi-options-engine/internal/model"
)

// Filter narrows a candle set to a date range and a set of underlyings.
// Zero values select everything.
type Filter struct {
	From        time.Time // inclusive
	To          time.Time // exclusive
	Underlyings []string
}

// Match reports whether c passes the filter.
func (f Filter) Match(c model.Candle) bool {
	if !f.From.IsZero() && c.TS.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !c.TS.Before(f.To) {
		return false
	}
	if len(f.Underlyings) == 0 {
		return true
	}
	for _, u := range f.Underlyings {
		if strings.EqualFold(u, c.Leg.Underlying) {
			return true
		}
	}
	return false
}

// Apply returns the candles passing the filter, in their original order.
func (f Filter) Apply(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Events converts candles to engine events.
func Events(candles []model.Candle) []model.Event {
	evs := make([]model.Event, len(candles))
	for i, c := range candles {
		evs[i] = c
	}
	return evs
}
