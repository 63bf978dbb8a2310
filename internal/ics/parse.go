package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Parse decodes an iCalendar document and returns every VEVENT it contains.
// A body may hold more than one VCALENDAR object; all of them are read.
func Parse(body []byte) ([]Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty iCalendar body")
	}

	dec := ical.NewDecoder(bytes.NewReader(body))

	var events []Event
	calendars := 0
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse iCalendar: %w", err)
		}
		calendars++

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			events = append(events, eventFromComponent(comp))
		}
	}

	if calendars == 0 {
		return nil, fmt.Errorf("no VCALENDAR found in body")
	}

	return events, nil
}

// eventFromComponent converts a VEVENT component into an Event.
func eventFromComponent(comp *ical.Component) Event {
	return Event{
		UID:         textProp(comp, ical.PropUID),
		Summary:     textProp(comp, ical.PropSummary),
		Description: textProp(comp, ical.PropDescription),
		Location:    textProp(comp, ical.PropLocation),
		Start:       momentProp(comp, ical.PropDateTimeStart),
		End:         momentProp(comp, ical.PropDateTimeEnd),
	}
}

// textProp returns the unescaped text of a property, or "" if it is absent.
func textProp(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	text, err := prop.Text()
	if err != nil {
		// Not valid TEXT; the raw value is still better than nothing
		return prop.Value
	}
	return text
}

// momentProp reads a DATE or DATE-TIME property.
// Floating values (no TZID, no trailing Z) are read as UTC. A value the library
// cannot interpret, for example one with an unknown TZID, is kept in Raw only.
func momentProp(comp *ical.Component, name string) *Moment {
	prop := comp.Props.Get(name)
	if prop == nil || strings.TrimSpace(prop.Value) == "" {
		return nil
	}

	m := &Moment{
		Raw:      prop.Value,
		DateOnly: strings.EqualFold(prop.Params.Get("VALUE"), "DATE") || !strings.Contains(prop.Value, "T"),
	}

	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return m
	}
	m.Time = t
	return m
}
