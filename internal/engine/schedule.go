package engine

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"rsi-options-engine/internal/markethours"
)

// summaryDelay is how long after the cutoff the daily summary runs.
const summaryDelay = 5 * time.Minute

// Scheduler fires the cutoff heartbeat and the daily summary on trading
// days, in exchange time.
type Scheduler struct {
	s   *gocron.Scheduler
	log zerolog.Logger
	now func() time.Time
}

// NewScheduler registers the cutoff heartbeat for session and, when
// onSummary is non-nil, a daily summary shortly after the cutoff.
func NewScheduler(window markethours.Window, session *Session, onSummary func(day string), log zerolog.Logger) (*Scheduler, error) {
	sch := &Scheduler{
		s:   gocron.NewScheduler(markethours.IST),
		log: log.With().Str("component", "scheduler").Logger(),
		now: time.Now,
	}

	_, err := sch.s.Every(1).Day().At(window.End.String()).Do(func() {
		now := sch.now()
		if !markethours.IsTradingDay(now) {
			return
		}
		ts := window.Cutoff(now)
		if err := session.Heartbeat(context.Background(), ts); err != nil {
			sch.log.Warn().Err(err).Msg("cutoff heartbeat not delivered")
			return
		}
		sch.log.Info().Time("cutoff", ts).Msg("cutoff heartbeat sent")
	})
	if err != nil {
		return nil, errors.Wrap(err, "scheduling cutoff heartbeat")
	}

	if onSummary != nil {
		at := window.End + markethours.Clock(summaryDelay/time.Second)
		_, err = sch.s.Every(1).Day().At(at.String()).Do(func() {
			now := sch.now()
			if !markethours.IsTradingDay(now) {
				return
			}
			onSummary(markethours.DayKey(now))
		})
		if err != nil {
			return nil, errors.Wrap(err, "scheduling daily summary")
		}
	}
	return sch, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() { s.s.StartAsync() }

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() { s.s.Stop() }

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.s.Jobs()) }
