package model

import "time"

// Event is anything the per-leg pipeline consumes in timestamp order.
// Implemented by Tick, Candle and Heartbeat.
type Event interface {
	EventLeg() Leg
	EventTime() time.Time
}

// Tick is a single option-price observation for one leg.
// Price is stored as int64 in paise (1 INR = 100 paise) to avoid float drift.
type Tick struct {
	Leg    Leg       `json:"leg"`
	TS     time.Time `json:"ts"`
	Price  int64     `json:"price"`            // paise (LTP)
	Volume int64     `json:"volume,omitempty"` // last traded quantity
	OI     int64     `json:"oi,omitempty"`
	IV     float64   `json:"iv,omitempty"`
}

func (t Tick) EventLeg() Leg { return t.Leg }
func (t Tick) EventTime() time.Time { return t.TS }

// Heartbeat advances a leg's clock without a price. The live scheduler uses
// it to trigger the cutoff when the feed goes quiet. It never starts a new
// day on its own.
type Heartbeat struct {
	Leg Leg
	TS  time.Time
}

func (h Heartbeat) EventLeg() Leg { return h.Leg }
func (h Heartbeat) EventTime() time.Time { return h.TS }
