// Package markethours holds the exchange calendar and the intraday trading
// window used to gate signals, entries and the end-of-day cutoff.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Clock is a time of day, in seconds since midnight.
type Clock int

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
}

// ClockOf returns the IST time of day of t.
func ClockOf(t time.Time) Clock {
	ist := t.In(IST)
	return Clock(ist.Hour()*3600 + ist.Minute()*60 + ist.Second())
}

func (c Clock) String() string {
	h, m, s := int(c)/3600, int(c)%3600/60, int(c)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// On returns the instant of this clock time on t's IST calendar date.
func (c Clock) On(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST).Add(time.Duration(c) * time.Second)
}

// Window is the intraday trading window [Start, End). End is also the
// end-of-day cutoff.
type Window struct {
	Start Clock
	End   Clock
}

// DefaultWindow is 09:18 to 15:15 IST.
var DefaultWindow = Window{Start: 9*3600 + 18*60, End: 15*3600 + 15*60}

// Phase classifies an instant against the window.
type Phase int

const (
	BeforeOpen Phase = iota
	InWindow
	AtCutoff // exactly the cutoff instant
	AfterCutoff
)

// PhaseOf returns where t falls relative to the window on its own day.
func (w Window) PhaseOf(t time.Time) Phase {
	c := ClockOf(t)
	switch {
	case c < w.Start:
		return BeforeOpen
	case c < w.End:
		return InWindow
	case c == w.End && t.Equal(w.End.On(t)):
		return AtCutoff
	default:
		return AfterCutoff
	}
}

// Contains reports whether t is inside [Start, End).
func (w Window) Contains(t time.Time) bool { return w.PhaseOf(t) == InWindow }

// Cutoff returns the cutoff instant on t's trading day.
func (w Window) Cutoff(t time.Time) time.Time { return w.End.On(t) }

// Validate checks that the window is non-empty and inside one day.
func (w Window) Validate() error {
	if w.Start < 0 || w.End > 24*3600 {
		return fmt.Errorf("trading window %s-%s outside the day", w.Start, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("trading window start %s not before end %s", w.Start, w.End)
	}
	return nil
}

// DayKey returns the IST trading day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// NextTradingDay returns midnight IST of the first trading day after t.
func NextTradingDay(t time.Time) time.Time {
	ist := t.In(IST)
	d := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // weekends + holiday clusters
		if IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// StatusString returns a human-readable session status for t.
func (w Window) StatusString(t time.Time) string {
	if !IsTradingDay(t) {
		return fmt.Sprintf("Holiday, next session %s", DayKey(NextTradingDay(t)))
	}
	switch w.PhaseOf(t) {
	case BeforeOpen:
		return fmt.Sprintf("Pre-window, opens %s (%s)", w.Start, fmtDur(w.Start.On(t).Sub(t)))
	case InWindow:
		return fmt.Sprintf("Window open, cutoff in %s", fmtDur(w.Cutoff(t).Sub(t)))
	default:
		return "Window closed"
	}
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
