// Package indicator provides streaming indicator calculations over sealed
// candles, plus threshold-crossing detection on their output.
package indicator

import "rsi-options-engine/internal/model"

// Indicator is the interface for streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "RSI_14").
	Name() string

	// Update feeds a new candle and returns the value, if defined yet.
	Update(candle model.Candle) (float64, bool)

	// Value returns the last defined value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset discards all accumulated state.
	Reset()
}

// Crossing detects an upward cross through Level: previous < Level <= current.
// The first defined value never counts as a cross.
type Crossing struct {
	Level float64

	prev    float64
	hasPrev bool
}

// NewCrossing creates an upward crossing detector at level.
func NewCrossing(level float64) *Crossing {
	return &Crossing{Level: level}
}

// Next feeds a defined indicator value and reports whether it crossed up.
func (c *Crossing) Next(v float64) bool {
	crossed := c.hasPrev && c.prev < c.Level && v >= c.Level
	c.prev = v
	c.hasPrev = true
	return crossed
}

// Previous returns the last value fed, if any.
func (c *Crossing) Previous() (float64, bool) { return c.prev, c.hasPrev }

// Reset forgets the previous value.
func (c *Crossing) Reset() {
	c.prev = 0
	c.hasPrev = false
}
