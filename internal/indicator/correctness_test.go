package indicator

import (
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"

	"rsi-options-engine/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func candle(closePaise int64) model.Candle {
	return model.Candle{
		Open: closePaise, High: closePaise + 50, Low: closePaise - 50, Close: closePaise,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// Deltas over the first 5 changes:
	//   +0.34, -0.25, -0.48, +0.72, +0.50
	//   avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	//   RSI = 100 - 100/(1+2.13699) = 68.112
	//
	// Candle 7 (45.10): delta=+0.27
	//   avgGain = (0.312*4 + 0.27)/5 = 0.3036, avgLoss = 0.1168 → 72.219
	// Candle 8 (45.42): delta=+0.32 → 76.658
	// Candle 9 (45.84): delta=+0.42 → 81.509

	prices := []int64{4400, 4434, 4409, 4361, 4433, 4483, 4510, 4542, 4584}
	want := []float64{68.112, 72.219, 76.658, 81.509}

	rsi := NewRSI(5)
	for i := 0; i < 5; i++ {
		_, ok := rsi.Update(candle(prices[i]))
		if ok {
			t.Fatalf("candle %d: value defined before warm-up", i+1)
		}
	}
	for i, p := range prices[5:] {
		v, ok := rsi.Update(candle(p))
		if !ok {
			t.Fatalf("candle %d: expected a value", i+6)
		}
		assertClose(t, "RSI(5)", v, want[i], 0.01)
	}
}

func TestRSI_WarmupNeedsPeriodChanges(t *testing.T) {
	rsi := NewRSI(14)
	for i := 0; i < 14; i++ {
		_, ok := rsi.Update(candle(int64(10000 + i)))
		assert.False(t, ok)
	}
	assert.Equal(t, 13, rsi.Warmup())
	assert.False(t, rsi.Ready())

	_, ok := rsi.Update(candle(10100))
	assert.True(t, ok)
	assert.True(t, rsi.Ready())
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 40; i++ {
		v, ok := rsi.Update(candle(int64(10000 + i*100)))
		if ok {
			assert.True(t, v >= 0 && v <= 100)
		}
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(int64(20000 - i*100)))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_Is50(t *testing.T) {
	// Both averages are zero: neither side has momentum.
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(10000))
	}
	assertClose(t, "RSI flat", rsi.Value(), 50.0, 0.001)
}

func TestRSI_BoundedOnNoisySeries(t *testing.T) {
	rsi := NewRSI(14)
	p := int64(15000)
	for i := 0; i < 300; i++ {
		p += int64((i*7919)%41) - 20
		if v, ok := rsi.Update(candle(p)); ok && (v < 0 || v > 100) {
			t.Fatalf("candle %d: RSI %.4f out of range", i, v)
		}
	}
}

func TestRSI_ResetReproducesTrajectory(t *testing.T) {
	series := []int64{10000, 10150, 10090, 10230, 10400, 10310, 10280, 10520, 10610, 10490, 10700}

	rsi := NewRSI(5)
	run := func() []float64 {
		var out []float64
		for _, p := range series {
			if v, ok := rsi.Update(candle(p)); ok {
				out = append(out, v)
			}
		}
		return out
	}

	day1 := run()
	// a noisy tail the next day must not leak through
	for _, p := range []int64{9000, 12000, 8000} {
		rsi.Update(candle(p))
	}
	rsi.Reset()
	day2 := run()

	assert.Equal(t, day1, day2)
	assert.Equal(t, len(series)-5, len(day1))
}

// ────────────────────────────────────────────────────────────
// Crossing
// ────────────────────────────────────────────────────────────

func TestCrossing_UpwardOnly(t *testing.T) {
	c := NewCrossing(70)
	assert.False(t, c.Next(75)) // first value never crosses
	assert.False(t, c.Next(65))
	assert.True(t, c.Next(70)) // 65 < 70 <= 70
	assert.False(t, c.Next(80))
	assert.False(t, c.Next(60))
	assert.True(t, c.Next(71))

	prev, ok := c.Previous()
	assert.True(t, ok)
	assertClose(t, "previous", prev, 71, 0)

	c.Reset()
	assert.False(t, c.Next(90))
}

func TestCrossing_ExactlyAtLevelIsNotBelow(t *testing.T) {
	c := NewCrossing(70)
	c.Next(70)
	assert.False(t, c.Next(72))
}
