// Package markethours is the NSE cash-market session calendar.
package markethours

import (
	"fmt"
	"time"
)

// IST is Indian Standard Time. India has no DST, so a fixed zone is exact.
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session bounds in minutes after IST midnight.
const (
	sessionOpen  = 9*60 + 15
	sessionClose = 15*60 + 30
)

// maxClosedRun bounds the search for the next session.
const maxClosedRun = 10

// StartOfDay returns IST midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
}

// Session returns the open and close instants on t's IST date, whether or
// not that date trades.
func Session(t time.Time) (open, close time.Time) {
	day := StartOfDay(t)
	return day.Add(sessionOpen * time.Minute), day.Add(sessionClose * time.Minute)
}

// IsTradingDay reports whether t's IST date is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	switch t.In(IST).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !IsHoliday(t)
}

// IsMarketOpen reports whether t is inside a session. Close is exclusive.
func IsMarketOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	open, close := Session(t)
	return !t.Before(open) && t.Before(close)
}

// NextOpen returns the first session open strictly after t.
func NextOpen(t time.Time) time.Time {
	day := StartOfDay(t)
	if open, _ := Session(day); t.Before(open) && IsTradingDay(day) {
		return open
	}
	for i := 1; i <= maxClosedRun; i++ {
		d := day.AddDate(0, 0, i)
		if IsTradingDay(d) {
			open, _ := Session(d)
			return open
		}
	}
	open, _ := Session(day.AddDate(0, 0, 1))
	return open
}

// StatusString describes the session state at t for chat messages.
func StatusString(t time.Time) string {
	var s string
	if IsMarketOpen(t) {
		_, close := Session(t)
		s = fmt.Sprintf("Open until %s IST (%s left)", close.Format("15:04"), span(close.Sub(t)))
	} else {
		next := NextOpen(t)
		s = fmt.Sprintf("Closed, next session %s IST (in %s)", next.Format("Mon 02 Jan 15:04"), span(next.Sub(t)))
	}
	if year := t.In(IST).Year(); !CalendarCovers(year) {
		s += fmt.Sprintf(", holiday calendar missing for %d", year)
	}
	return s
}

func span(d time.Duration) string {
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	h := int(d % (24 * time.Hour) / time.Hour)
	m := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, h)
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
