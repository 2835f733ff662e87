package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"rsi-options-engine/config"
	"rsi-options-engine/internal/markethours"
	"rsi-options-engine/internal/model"
)

var (
	leg = model.Leg{Underlying: "BANKNIFTY", OptionType: model.Put, ExpiryClass: model.Monthly, StrikeOffset: -100}
	t0  = time.Date(2024, 3, 5, 10, 15, 0, 0, markethours.IST)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func closed(reason model.ExitReason, pct string) model.TradeRecord {
	return model.TradeRecord{
		Leg:         leg,
		ExitReason:  reason,
		PartsFilled: 2,
		AvgEntry:    d("107.5"),
		ExitPrice:   d("96.75"),
		PnLPct:      d(pct),
		PnLMoney:    d("6660"),
		ExitTS:      t0,
	}
}

func TestCloseAlert_KindsAndLevels(t *testing.T) {
	a := CloseAlert(closed(model.ExitTarget, "10"))
	assert.Equal(t, KindTarget, a.Kind)
	assert.Equal(t, AlertInfo, a.Level)
	assert.True(t, strings.Contains(a.Message, "Profit: +10.00%"))
	assert.True(t, strings.Contains(a.Message, "₹107.50"))
	assert.Equal(t, "BANKNIFTY:PE:MONTH:-100", a.Leg)

	a = CloseAlert(closed(model.ExitStopLoss, "-20"))
	assert.Equal(t, KindStopLoss, a.Kind)
	assert.Equal(t, AlertWarning, a.Level)
	assert.True(t, strings.Contains(a.Message, "Loss: -20.00%"))

	a = CloseAlert(closed(model.ExitEOD, "1.5"))
	assert.Equal(t, KindEOD, a.Kind)
	assert.True(t, strings.Contains(a.Message, "05-Mar-2024 10:15:00"))
}

func TestSignalAlert_ListsLadder(t *testing.T) {
	cfg := config.DefaultStrategy()
	sig := model.Signal{Leg: leg, BasePrice: d("150.5"), RSI: 71.234, TS: t0}
	a := SignalAlert(sig, []decimal.Decimal{d("158.025"), d("165.55"), d("173.075")}, &cfg)

	assert.Equal(t, KindSignal, a.Kind)
	assert.True(t, strings.Contains(a.Message, "RSI: 71.23"))
	assert.True(t, strings.Contains(a.Message, "Part 1 (33.33%): ₹158.03 (+5%)"))
	assert.True(t, strings.Contains(a.Message, "Part 3 (33.34%): ₹173.08 (+15%)"))
	assert.True(t, strings.Contains(a.Message, "SELL PE"))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `NIFTY:CE \(WEEK, \+0\) ₹1\.50\!`, escapeMarkdown("NIFTY:CE (WEEK, +0) ₹1.50!"))
}

type fakeBot struct {
	sent []tgbot.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	if f.err != nil {
		return tgbot.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbot.MessageConfig))
	return tgbot.Message{}, nil
}

func TestTelegramNotifier_Send(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{bot: bot, chatID: 42}

	err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "ERROR ALERT", Message: "feed down."})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(bot.sent))
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, tgbot.ModeMarkdownV2, bot.sent[0].ParseMode)
	assert.True(t, strings.HasPrefix(bot.sent[0].Text, "🚨 *ERROR ALERT*"))
	assert.True(t, strings.HasSuffix(bot.sent[0].Text, `feed down\.`))

	bot.err = errors.New("429")
	assert.Error(t, n.Send(context.Background(), Alert{}))
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	assert.NoError(t, n.Send(context.Background(), CloseAlert(closed(model.ExitTarget, "10"))))
	assert.Equal(t, "target", gjson.GetBytes(body, "kind").String())
	assert.Equal(t, "BANKNIFTY:PE:MONTH:-100", gjson.GetBytes(body, "leg").String())
}

func TestWebhookNotifier_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))
}

type memNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	fail   error
	block  chan struct{}
}

func (m *memNotifier) Send(_ context.Context, a Alert) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memNotifier) kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ks []Kind
	for _, a := range m.alerts {
		ks = append(ks, a.Kind)
	}
	return ks
}

func newDispatcher(queue int) *Dispatcher {
	cfg := config.DefaultStrategy()
	return NewDispatcher(&cfg, zerolog.Nop(), queue)
}

func TestDispatcher_DeliversLifecycleInOrder(t *testing.T) {
	mem := &memNotifier{}
	disp := newDispatcher(16)
	disp.Add("mem", mem)
	go disp.Run(context.Background())

	sig := model.Signal{Leg: leg, Day: "2024-03-05", BasePrice: d("100"), TS: t0}
	var listener model.LifecycleListener = disp
	listener.SignalCreated(sig)
	listener.PositionOpened(leg, model.Fill{Tranche: 1})
	listener.TrancheFilled(leg, model.Fill{Tranche: 1, Price: d("105"), Fraction: d("33.33"), TS: t0}, d("105"))
	listener.PositionClosed(closed(model.ExitStopLoss, "-20"))
	listener.SignalExpired(sig)
	listener.LegDegraded(leg, "2024-03-05", errors.New("non-monotonic timestamp"))

	assert.NoError(t, disp.Close(context.Background()))
	assert.Equal(t, []Kind{KindSignal, KindEntry, KindStopLoss, KindExpired, KindDegraded}, mem.kinds())
	assert.Equal(t, 1, disp.Signals("2024-03-05"))
	assert.False(t, disp.Enqueue(Alert{}))
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	mem := &memNotifier{block: make(chan struct{})}
	disp := newDispatcher(1)
	disp.Add("slow", mem)
	dropped := 0
	disp.OnDrop = func(Alert) { dropped++ }

	// nothing drains the queue yet
	assert.True(t, disp.Enqueue(Alert{Kind: KindError}))
	assert.False(t, disp.Enqueue(Alert{Kind: KindError}))
	assert.Equal(t, 1, dropped)

	go disp.Run(context.Background())
	close(mem.block)
	assert.NoError(t, disp.Close(context.Background()))
	assert.Equal(t, 1, len(mem.kinds()))
}

func TestDispatcher_FailingChannelDoesNotBlockOthers(t *testing.T) {
	bad := &memNotifier{fail: errors.New("down")}
	good := &memNotifier{}
	disp := newDispatcher(32)
	disp.Add("bad", bad)
	disp.Add("good", good)
	failures := 0
	disp.OnFailure = func(string, error) { failures++ }
	go disp.Run(context.Background())

	for i := 0; i < 8; i++ {
		disp.Error("feed", errors.New("reconnect failed"))
	}
	assert.NoError(t, disp.Close(context.Background()))

	assert.Equal(t, 8, len(good.kinds()))
	// the breaker opens after five failures; later sends are rejected
	// without reaching the channel but still count as failures
	assert.Equal(t, 8, failures)
	assert.Equal(t, []string{"bad", "good"}, disp.Channels())
}

func TestDispatcher_DailySummary(t *testing.T) {
	mem := &memNotifier{}
	disp := newDispatcher(8)
	disp.Add("mem", mem)
	go disp.Run(context.Background())

	disp.SignalCreated(model.Signal{Leg: leg, Day: "2024-03-05", BasePrice: d("100"), TS: t0})
	disp.DailySummary("2024-03-05", []model.TradeRecord{closed(model.ExitTarget, "10"), closed(model.ExitStopLoss, "-20")})
	assert.NoError(t, disp.Close(context.Background()))

	mem.mu.Lock()
	defer mem.mu.Unlock()
	last := mem.alerts[len(mem.alerts)-1]
	assert.Equal(t, KindSummary, last.Kind)
	assert.True(t, strings.Contains(last.Message, "Total Signals: 1"))
	assert.True(t, strings.Contains(last.Message, "Win Rate: 50.00%"))
	assert.True(t, strings.Contains(last.Message, "Total P&L: -10.00%"))
}
