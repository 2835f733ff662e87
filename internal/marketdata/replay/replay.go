// Package replay loads historical one-minute candles from CSV files or the
// candle store, and replays them into a live session at a configurable
// speed for dry runs.
package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rsi-options-engine/internal/model"
)

// maxGap caps a single paced wait so that overnight gaps do not stall a run.
const maxGap = 5 * time.Second

// SubmitFunc hands one event to the consumer, typically Session.Submit.
type SubmitFunc func(ctx context.Context, ev model.Event) error

// Replayer reads historical candles and replays them at a configurable
// speed multiplier.
type Replayer struct {
	reader model.CandleReader
	log    zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by reader.
func New(reader model.CandleReader, log zerolog.Logger) *Replayer {
	return &Replayer{
		reader: reader,
		log:    log.With().Str("component", "replay").Logger(),
		sleep:  sleepCtx,
	}
}

// Run replays the candles matching f through submit.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) Run(ctx context.Context, f Filter, speed float64, submit SubmitFunc) (int, error) {
	candles, err := r.reader.ReadCandles(ctx, f.From, f.To)
	if err != nil {
		return 0, err
	}
	candles = f.Apply(candles)
	if len(candles) == 0 {
		r.log.Warn().Msg("no candles to replay")
		return 0, nil
	}
	r.log.Info().Int("candles", len(candles)).Float64("speed", speed).Msg("replay started")

	var prevTS time.Time
	emitted := 0
	for _, c := range candles {
		if speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				if err := r.sleep(ctx, scaled); err != nil {
					r.log.Info().Int("candles", emitted).Msg("replay cancelled")
					return emitted, err
				}
			}
		}
		prevTS = c.TS

		if err := submit(ctx, c); err != nil {
			return emitted, err
		}
		emitted++
	}

	r.log.Info().Int("candles", emitted).Msg("replay completed")
	return emitted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SliceReader serves candles already held in memory, e.g. from LoadCSV.
type SliceReader []model.Candle

func (s SliceReader) ReadCandles(_ context.Context, from, to time.Time) ([]model.Candle, error) {
	return Filter{From: from, To: to}.Apply(s), nil
}

func (SliceReader) Close() error { return nil }
