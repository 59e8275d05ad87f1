package util

import (
	"fmt"
	"time"
)

// Session describes the regular US equity trading session for one day in
// Eastern Time: 9:30 open, 16:00 close.
type Session struct {
	Open  time.Time
	Close time.Time
}

// easternTime is loaded once; LoadLocation only fails when the tz database
// is missing from the host, which we treat as a startup failure.
var easternTime *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("loading America/New_York timezone: %v", err))
	}
	easternTime = loc
}

// Eastern returns the America/New_York location.
func Eastern() *time.Location {
	return easternTime
}

// SessionFor returns the regular session boundaries for the calendar day of
// date, interpreted in Eastern Time. The caller is responsible for ensuring
// the date is actually a trading day.
func SessionFor(date time.Time) Session {
	d := date.In(easternTime)
	open := time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, easternTime)
	return Session{
		Open:  open,
		Close: open.Add(6*time.Hour + 30*time.Minute),
	}
}

// OpeningWindow returns the [start, end) span of the first `minutes` minutes
// of the session.
func (s Session) OpeningWindow(minutes int) (time.Time, time.Time) {
	return s.Open, s.Open.Add(time.Duration(minutes) * time.Minute)
}

// Contains reports whether t falls inside the regular session [open, close].
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Open) && !t.After(s.Close)
}

// DateKey formats a trading day as YYYY-MM-DD in Eastern Time, the canonical
// key used by universe files and result rows.
func DateKey(date time.Time) string {
	return date.In(easternTime).Format("2006-01-02")
}

// MidnightET truncates t to midnight Eastern Time of its calendar day.
func MidnightET(t time.Time) time.Time {
	d := t.In(easternTime)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, easternTime)
}
