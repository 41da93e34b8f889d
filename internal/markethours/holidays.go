package markethours

import (
	"log/slog"
	"sync"
	"time"
)

type holiday struct {
	month time.Month
	day   int
	name  string
}

// nseHolidays lists exchange holidays per calendar year. A year missing
// from the table has no known holidays and is reported once.
var nseHolidays = map[int][]holiday{
	2026: {
		{time.January, 26, "Republic Day"},
		{time.February, 17, "Mahashivratri"},
		{time.March, 14, "Holi"},
		{time.March, 31, "Id-ul-Fitr"},
		{time.April, 2, "Ram Navami"},
		{time.April, 6, "Mahavir Jayanti"},
		{time.April, 10, "Good Friday"},
		{time.April, 14, "Dr. Ambedkar Jayanti"},
		{time.May, 1, "Maharashtra Day"},
		{time.June, 7, "Bakri Id"},
		{time.July, 6, "Muharram"},
		{time.August, 15, "Independence Day"},
		{time.August, 16, "Janmashtami"},
		{time.September, 5, "Milad-un-Nabi"},
		{time.October, 2, "Gandhi Jayanti"},
		{time.October, 20, "Dussehra"},
		{time.October, 21, "Dussehra"},
		{time.November, 5, "Diwali Laxmi Pujan"},
		{time.November, 6, "Diwali Balipratipada"},
		{time.November, 7, "Bhai Dooj"},
		{time.November, 19, "Guru Nanak Jayanti"},
		{time.December, 25, "Christmas"},
	},
}

var uncoveredYears sync.Map

// CalendarCovers reports whether holidays are known for year.
func CalendarCovers(year int) bool {
	_, ok := nseHolidays[year]
	return ok
}

// IsHoliday reports whether t's IST date is an exchange holiday. Dates in a
// year without a calendar are never holidays; the first lookup logs a warning.
func IsHoliday(t time.Time) bool {
	ist := t.In(IST)
	days, ok := nseHolidays[ist.Year()]
	if !ok {
		warnUncovered(ist.Year())
		return false
	}
	for _, h := range days {
		if h.month == ist.Month() && h.day == ist.Day() {
			return true
		}
	}
	return false
}

func warnUncovered(year int) {
	if _, seen := uncoveredYears.LoadOrStore(year, struct{}{}); seen {
		return
	}
	slog.Warn("no NSE holiday calendar for year, weekdays treated as trading days",
		slog.String("component", "markethours"),
		slog.Int("year", year),
	)
}
