package indicator

import "rsi-options-engine/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per candle with no history scans. Price changes are taken in
// paise so the seed averages are free of float drift.
type RSI struct {
	period    int
	changes   int // candle-to-candle changes seen since Reset
	hasPrev   bool
	prevClose int64 // paise
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI_" + model.Itoa(r.period) }

// Update feeds a sealed candle and returns the new value, or false while
// fewer than period changes have been seen.
func (r *RSI) Update(candle model.Candle) (float64, bool) {
	if !r.hasPrev {
		r.hasPrev = true
		r.prevClose = candle.Close
		return 0, false
	}

	delta := float64(candle.Close-r.prevClose) / 100.0 // paise → rupees
	r.prevClose = candle.Close
	r.changes++

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	p := float64(r.period)
	if r.changes <= r.period {
		// Accumulation phase: simple mean seed
		r.avgGain += gain
		r.avgLoss += loss
		if r.changes < r.period {
			return 0, false
		}
		r.avgGain /= p
		r.avgLoss /= p
	} else {
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	r.current = rsiValue(r.avgGain, r.avgLoss)
	return r.current, true
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0 // flat
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.changes >= r.period }

// Warmup returns how many candle-to-candle changes have been consumed.
func (r *RSI) Warmup() int { return r.changes }

// Reset clears all state. Called at the first candle of each trading day.
func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}
