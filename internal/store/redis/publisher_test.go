package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"rsi-options-engine/internal/model"
	"rsi-options-engine/internal/notification"
)

type fakeClient struct {
	adds    []*goredis.XAddArgs
	sets    map[string]string
	pubs    map[string][]string
	xaddErr error
	closed  bool
}

func newFake() *fakeClient {
	return &fakeClient{sets: map[string]string{}, pubs: map[string][]string{}}
}

func (f *fakeClient) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) XAdd(_ context.Context, a *goredis.XAddArgs) *goredis.StringCmd {
	if f.xaddErr != nil {
		return goredis.NewStringResult("", f.xaddErr)
	}
	f.adds = append(f.adds, a)
	return goredis.NewStringResult("1-0", nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	f.sets[key] = value.(string)
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Publish(_ context.Context, ch string, msg interface{}) *goredis.IntCmd {
	f.pubs[ch] = append(f.pubs[ch], msg.(string))
	return goredis.NewIntResult(1, nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

var leg = model.Leg{Underlying: "NIFTY", OptionType: model.Put, ExpiryClass: model.Weekly, StrikeOffset: -1}

func TestPublisher_Send(t *testing.T) {
	f := newFake()
	p := newPublisher(f, "", zerolog.Nop())

	alert := notification.Alert{
		Level:   notification.AlertInfo,
		Kind:    notification.KindSignal,
		Leg:     leg.Key(),
		Title:   "NEW SIGNAL",
		Message: "RSI crossed 70",
		TS:      time.Date(2024, 3, 5, 9, 34, 0, 0, time.UTC),
	}
	assert.NoError(t, p.Send(context.Background(), alert))

	assert.Equal(t, 1, len(f.adds))
	assert.Equal(t, "rsibot:events:alerts", f.adds[0].Stream)
	assert.Equal(t, int64(alertsMaxLen), f.adds[0].MaxLen)
	assert.True(t, f.adds[0].Approx)
	assert.Equal(t, "signal", f.adds[0].Values.(map[string]interface{})["kind"])

	msgs := f.pubs["pub:rsibot:events:alerts"]
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, "NEW SIGNAL", gjson.Get(msgs[0], "title").String())
	assert.Equal(t, "NIFTY:PE:WEEK:-1", gjson.Get(msgs[0], "leg").String())
}

func TestPublisher_Record(t *testing.T) {
	f := newFake()
	p := newPublisher(f, "desk", zerolog.Nop())

	rec := model.TradeRecord{
		ID:         "abc",
		Leg:        leg,
		Day:        "2024-03-05",
		ExitReason: model.ExitStopLoss,
		PnLPct:     decimal.RequireFromString("-20"),
	}
	assert.NoError(t, p.Record(context.Background(), rec))

	assert.Equal(t, "desk:trades", f.adds[0].Stream)
	data := f.sets["desk:latest:NIFTY:PE:WEEK:-1"]
	assert.Equal(t, "stop_loss", gjson.Get(data, "exit_reason").String())
	assert.Equal(t, "-20", gjson.Get(data, "realized_pnl_pct").String())
	assert.Equal(t, 1, len(f.pubs["pub:desk:trades"]))

	assert.NoError(t, p.Close())
	assert.True(t, f.closed)
}

func TestPublisher_XAddFailure(t *testing.T) {
	f := newFake()
	f.xaddErr = errors.New("connection refused")
	p := newPublisher(f, "", zerolog.Nop())

	err := p.Record(context.Background(), model.TradeRecord{ID: "x", Leg: leg})
	assert.Error(t, err)
	assert.Equal(t, 0, len(f.sets))
	assert.Equal(t, 0, len(f.pubs))
}
