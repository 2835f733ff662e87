package model

import "time"

// Candle is a fixed-interval OHLC bar for a single leg.
// All prices are in paise (int64) to avoid floating-point drift.
type Candle struct {
	Leg    Leg       `json:"leg"`
	TS     time.Time `json:"ts"`     // bucket start time
	Open   int64     `json:"open"`   // paise
	High   int64     `json:"high"`   // paise
	Low    int64     `json:"low"`    // paise
	Close  int64     `json:"close"`  // paise
	Volume int64     `json:"volume"` // summed quantity in this bucket
	OI     int64     `json:"oi,omitempty"`
	IV     float64   `json:"iv,omitempty"`
	Ticks  int       `json:"ticks"` // observations aggregated, 0 for pre-built bars
}

func (c Candle) EventLeg() Leg { return c.Leg }
func (c Candle) EventTime() time.Time { return c.TS }

// Path returns the intrabar price sequence used to drive entries and exits
// from a pre-built bar: open, high, low, close. The adverse extreme for a
// short comes before the favourable one.
func (c Candle) Path() [4]int64 {
	return [4]int64{c.Open, c.High, c.Low, c.Close}
}
