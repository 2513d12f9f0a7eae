// Package calendar provides the trading-session predicate shared by the
// snapshot validator, the scheduler, and the feedback sweep. All cycles
// self-terminate outside the session window and resume on the next one.
package calendar

import (
	"fmt"
	"time"
)

// Session describes a weekday trading window in a fixed location.
type Session struct {
	Open     MinuteOfDay
	Close    MinuteOfDay
	Location *time.Location
}

// MinuteOfDay is minutes after midnight, local to the session location.
type MinuteOfDay int

// ParseMinuteOfDay parses "HH:MM" into minutes after midnight.
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return MinuteOfDay(t.Hour()*60 + t.Minute()), nil
}

// NewSession builds a session from "HH:MM" open/close strings and a tz name.
func NewSession(open, close, tz string) (*Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	o, err := ParseMinuteOfDay(open)
	if err != nil {
		return nil, err
	}
	c, err := ParseMinuteOfDay(close)
	if err != nil {
		return nil, err
	}
	if c <= o {
		return nil, fmt.Errorf("session close %s must be after open %s", close, open)
	}
	return &Session{Open: o, Close: c, Location: loc}, nil
}

// Open reports whether t falls on a weekday inside the session window.
func (s *Session) IsOpen(t time.Time) bool {
	lt := t.In(s.Location)
	switch lt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	m := MinuteOfDay(lt.Hour()*60 + lt.Minute())
	return m >= s.Open && m < s.Close
}

// IsWeekend reports whether t falls on Saturday or Sunday in session time.
func (s *Session) IsWeekend(t time.Time) bool {
	wd := t.In(s.Location).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
