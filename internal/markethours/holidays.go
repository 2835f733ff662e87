package markethours

import (
	"fmt"
	"sync"
	"time"
)

// NSE holidays for 2026, month/day pairs.
var nseHolidays2026 = []struct {
	month time.Month
	day   int
}{
	{time.January, 26},   // Republic Day
	{time.March, 3},      // Holi
	{time.March, 26},     // Ram Navami
	{time.March, 31},     // Mahavir Jayanti
	{time.April, 3},      // Good Friday
	{time.April, 14},     // Dr. Ambedkar Jayanti
	{time.May, 1},        // Maharashtra Day
	{time.May, 28},       // Bakri Id
	{time.June, 26},      // Muharram
	{time.September, 14}, // Ganesh Chaturthi
	{time.October, 2},    // Mahatma Gandhi Jayanti
	{time.October, 20},   // Dussehra
	{time.November, 10},  // Diwali Balipratipada
	{time.November, 24},  // Guru Nanak Jayanti
	{time.December, 25},  // Christmas
}

var (
	holidayMu  sync.RWMutex
	holidaySet map[string]bool
)

func init() {
	holidaySet = make(map[string]bool, len(nseHolidays2026))
	for _, h := range nseHolidays2026 {
		holidaySet[dateKey(2026, h.month, h.day)] = true
	}
}

// AddHolidays registers extra exchange holidays given as YYYY-MM-DD.
func AddHolidays(days ...string) error {
	holidayMu.Lock()
	defer holidayMu.Unlock()
	for _, d := range days {
		t, err := time.ParseInLocation("2006-01-02", d, IST)
		if err != nil {
			return fmt.Errorf("holiday %q: %w", d, err)
		}
		holidaySet[DayKey(t)] = true
	}
	return nil
}

// IsHoliday returns true if the date (in IST) is an NSE holiday.
func IsHoliday(t time.Time) bool {
	holidayMu.RLock()
	defer holidayMu.RUnlock()
	return holidaySet[DayKey(t)]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, IST).Format("2006-01-02")
}
