// AngelaMos | 2026
// clock.go

package core

import "time"

// Clock is injected wherever "today" matters so unlock gating can be
// exercised with a fixed time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func RealClock() Clock { return realClock{} }

// FixedClock always reports the same instant.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// Day returns the calendar date of t in loc, expressed as UTC midnight.
// All unlock dates are stored and compared in this form.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts "2006-01-02" or an RFC3339 timestamp and keeps only the
// calendar date, read in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t, loc), nil
}
