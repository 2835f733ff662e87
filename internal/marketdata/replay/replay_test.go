package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
)

const sample = `timestamp,leg,open,high,low,close,volume,open_interest,implied_volatility
2024-03-05 09:16:00,NIFTY:PE:WEEK:+0,120.5,121,119.25,120,1500,32000,14.2
2024-03-05 09:15:00,NIFTY:CE:WEEK:+0,100,101.5,99.5,101,2500.0,,
2024-03-05 09:16:00,NIFTY:CE:WEEK:+0,101,102,100.5,101.75,1800,41000,13.1
2024-03-06T09:15:00+05:30,BANKNIFTY:CE:MONTH:-1,300,305,298,304,10,,
`

func TestReadCSV(t *testing.T) {
	candles, err := ReadCSV(strings.NewReader(sample))
	assert.NoError(t, err)
	assert.Equal(t, 4, len(candles))

	first := candles[0]
	assert.Equal(t, "NIFTY:CE:WEEK:+0", first.Leg.Key())
	assert.True(t, first.TS.Equal(time.Date(2024, 3, 5, 9, 15, 0, 0, markethours.IST)))
	assert.Equal(t, int64(10000), first.Open)
	assert.Equal(t, int64(10150), first.High)
	assert.Equal(t, int64(2500), first.Volume)
	assert.Equal(t, int64(0), first.OI)

	// ties on timestamp are ordered by leg
	assert.Equal(t, model.Call, candles[1].Leg.OptionType)
	assert.Equal(t, model.Put, candles[2].Leg.OptionType)
	assert.Equal(t, int64(11925), candles[2].Low)
	assert.Equal(t, int64(32000), candles[2].OI)
	assert.Equal(t, 14.2, candles[2].IV)

	assert.Equal(t, -1, candles[3].Leg.StrikeOffset)
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]string{
		"missing column": "timestamp,leg,open,high,low\n",
		"bad leg":        "timestamp,leg,open,high,low,close\n2024-03-05 09:15:00,NIFTY,1,1,1,1\n",
		"bad timestamp":  "timestamp,leg,open,high,low,close\nyesterday,NIFTY:CE:WEEK:+0,1,1,1,1\n",
		"bad price":      "timestamp,leg,open,high,low,close\n2024-03-05 09:15:00,NIFTY:CE:WEEK:+0,x,1,1,1\n",
		"high below low": "timestamp,leg,open,high,low,close\n2024-03-05 09:15:00,NIFTY:CE:WEEK:+0,1,1,2,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestFilter(t *testing.T) {
	candles, err := ReadCSV(strings.NewReader(sample))
	assert.NoError(t, err)

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, markethours.IST)
	got := Filter{From: day, To: day.AddDate(0, 0, 1)}.Apply(candles)
	assert.Equal(t, 3, len(got))

	got = Filter{Underlyings: []string{"banknifty"}}.Apply(candles)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, "BANKNIFTY", got[0].Leg.Underlying)

	assert.Equal(t, 4, len(Events(candles)))
}

func TestReplayer_Paced(t *testing.T) {
	candles, err := ReadCSV(strings.NewReader(sample))
	assert.NoError(t, err)

	r := New(SliceReader(candles), zerolog.Nop())
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	var got []model.Event
	n, err := r.Run(context.Background(), Filter{}, 60, func(_ context.Context, ev model.Event) error {
		got = append(got, ev)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, len(got))
	// one minute at 60x is one second; the overnight gap is capped
	assert.Equal(t, []time.Duration{time.Second, maxGap}, waits)
}

func TestReplayer_Cancelled(t *testing.T) {
	candles, err := ReadCSV(strings.NewReader(sample))
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(SliceReader(candles), zerolog.Nop())
	n, err := r.Run(ctx, Filter{}, 1, func(context.Context, model.Event) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
