package markethours

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func ist(hh, mm, ss int) time.Time {
	return time.Date(2024, 3, 5, hh, mm, ss, 0, IST)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:18")
	assert.NoError(t, err)
	assert.Equal(t, Clock(9*3600+18*60), c)
	assert.Equal(t, "09:18", c.String())

	c, err = ParseClock("15:15:30")
	assert.NoError(t, err)
	assert.Equal(t, "15:15:30", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestWindowPhase(t *testing.T) {
	w := DefaultWindow
	assert.Equal(t, BeforeOpen, w.PhaseOf(ist(9, 17, 59)))
	assert.Equal(t, InWindow, w.PhaseOf(ist(9, 18, 0)))
	assert.Equal(t, InWindow, w.PhaseOf(ist(15, 14, 59)))
	assert.Equal(t, AtCutoff, w.PhaseOf(ist(15, 15, 0)))
	assert.Equal(t, AfterCutoff, w.PhaseOf(ist(15, 15, 1)))
	assert.Equal(t, AfterCutoff, w.PhaseOf(ist(15, 15, 0).Add(time.Millisecond)))
}

func TestWindowUsesISTRegardlessOfInputZone(t *testing.T) {
	// 03:48 UTC is 09:18 IST
	utc := time.Date(2024, 3, 5, 3, 48, 0, 0, time.UTC)
	assert.True(t, DefaultWindow.Contains(utc))
	assert.Equal(t, "2024-03-05", DayKey(utc))

	// 19:00 UTC is already the next IST day
	late := time.Date(2024, 3, 5, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-06", DayKey(late))
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, DefaultWindow.Validate())
	assert.Error(t, Window{Start: 15 * 3600, End: 9 * 3600}.Validate())
	assert.Error(t, Window{Start: 9 * 3600, End: 9 * 3600}.Validate())
}

func TestTradingDays(t *testing.T) {
	assert.False(t, IsTradingDay(time.Date(2026, 1, 26, 10, 0, 0, 0, IST))) // Republic Day
	assert.False(t, IsTradingDay(time.Date(2026, 1, 24, 10, 0, 0, 0, IST))) // Saturday
	assert.True(t, IsTradingDay(time.Date(2026, 1, 27, 10, 0, 0, 0, IST)))

	next := NextTradingDay(time.Date(2026, 1, 23, 16, 0, 0, 0, IST)) // Friday
	assert.Equal(t, "2026-01-27", DayKey(next))
}

func TestAddHolidays(t *testing.T) {
	day := time.Date(2030, 6, 12, 10, 0, 0, 0, IST)
	assert.True(t, IsTradingDay(day))
	assert.NoError(t, AddHolidays("2030-06-12"))
	assert.False(t, IsTradingDay(day))
	assert.Error(t, AddHolidays("12/06/2030"))
}
