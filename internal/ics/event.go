package ics

import "time"

// Moment is a DTSTART/DTEND value as it appeared in the calendar.
//
// Time is set when the value could be parsed. Raw always holds the original
// property value so that callers can fall back to it when Time is zero.
type Moment struct {
	Time     time.Time
	DateOnly bool
	Raw      string
}

// IsZero reports whether the moment carries no usable information.
func (m *Moment) IsZero() bool {
	return m == nil || (m.Time.IsZero() && m.Raw == "")
}

// Event is a single VEVENT reduced to the fields the sync cares about.
// Events are immutable once parsed.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       *Moment
	End         *Moment
}
