package bus

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"rsi-options-engine/internal/model"
)

var leg = model.Leg{Underlying: "NIFTY", OptionType: model.Call, ExpiryClass: model.Weekly}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Event](10)
	out1 := fo.Subscribe(true)
	out2 := fo.Subscribe(false)

	input := make(chan model.Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Tick{Leg: leg, Price: 15050}

	assert.Equal(t, int64(15050), recv(t, out1).(model.Tick).Price)
	assert.Equal(t, int64(15050), recv(t, out2).(model.Tick).Price)
}

func TestFanOut_DropsOnlyForLossySubscriber(t *testing.T) {
	fo := New[int](1)
	lossless := fo.Subscribe(true)
	lossy := fo.Subscribe(false)

	var drops []int
	fo.OnDrop = func(i int) { drops = append(drops, i) }

	input := make(chan int, 3)
	input <- 1
	input <- 2
	input <- 3
	close(input)

	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	var got []int
	for v := range lossless {
		got = append(got, v)
	}
	<-done

	assert.Equal(t, []int{1, 2, 3}, got)
	var kept []int
	for v := range lossy {
		kept = append(kept, v)
	}
	assert.Equal(t, 1, len(kept))
	assert.Equal(t, []int{1, 1}, drops)
}

func TestFanOut_ClosesOutputsOnCancel(t *testing.T) {
	fo := New[int](1)
	out := fo.Subscribe(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fo.Run(ctx, make(chan int))

	_, ok := <-out
	assert.False(t, ok)
	assert.Equal(t, []ChannelStat{{Len: 0, Cap: 1}}, fo.ChannelStats())
}
