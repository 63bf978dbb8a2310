package sync

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beekhof/ics-tasks-sync/internal/ics"

	tasksapi "google.golang.org/api/tasks/v1"
)

const (
	// UntitledEvent is used as the title of events without a summary.
	UntitledEvent = "Untitled Event"

	maxTitleLength   = 500
	maxNotesLength   = 8000
	truncationMarker = "..."

	statusNeedsAction = "needsAction"
)

// dueTextLayouts are the textual forms accepted for a due value that the
// calendar parser could not turn into a time. Layouts without a zone parse as UTC.
var dueTextLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
}

// NormalizedTask is the task form of a calendar event.
type NormalizedTask struct {
	Title string
	Notes string
	// Due is an RFC 3339 instant at midnight UTC, or "" when the event has no
	// dates. A value that could not be parsed is carried through verbatim.
	Due         string
	IdentityKey string
}

// Normalize converts a calendar event into its task form.
//
// The due date prefers the event's end over its start, since a task is due
// when the event is over. The identity key depends on the title only, so a
// calendar edit that moves an event does not produce a second task.
func Normalize(event ics.Event) NormalizedTask {
	title := strings.TrimSpace(event.Summary)
	if title == "" {
		title = UntitledEvent
	}

	moment := event.End
	if moment.IsZero() {
		moment = event.Start
	}

	return NormalizedTask{
		Title:       title,
		Notes:       event.Description,
		Due:         normalizeDue(moment),
		IdentityKey: IdentityKey(truncate(title, maxTitleLength)),
	}
}

// IdentityKey returns the dedup key for a task title.
func IdentityKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// normalizeDue floors a moment to midnight UTC of its own calendar day.
// The day is taken in the zone the value was written in, so 23:59 at -05:00
// stays on that day.
func normalizeDue(m *ics.Moment) string {
	if m.IsZero() {
		return ""
	}

	t := m.Time
	if t.IsZero() {
		parsed, ok := parseDueText(m.Raw)
		if !ok {
			return m.Raw
		}
		t = parsed
	}

	return midnightUTC(t).Format(time.RFC3339)
}

func parseDueText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueTextLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDue parses a normalized due value.
func parseDue(due string) (time.Time, bool) {
	if due == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, due)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsPast reports whether task is due on a UTC calendar day before reference's.
// A task without a due date, or with one that does not parse, is never past.
func IsPast(task NormalizedTask, reference time.Time) bool {
	due, ok := parseDue(task.Due)
	if !ok {
		return false
	}
	return midnightUTC(due.UTC()).Before(midnightUTC(reference.UTC()))
}

// payload builds the insert body for task. Title and notes are capped, and a
// due value that does not parse is left out rather than sent upstream.
func (task NormalizedTask) payload() *tasksapi.Task {
	title := strings.TrimSpace(task.Title)
	if title == "" {
		title = UntitledEvent
	}

	body := &tasksapi.Task{
		Title:  truncate(title, maxTitleLength),
		Notes:  truncate(task.Notes, maxNotesLength),
		Status: statusNeedsAction,
	}
	if _, ok := parseDue(task.Due); ok {
		body.Due = task.Due
	}
	return body
}

// truncate caps s at max runes, marker included.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-len(truncationMarker)]) + truncationMarker
}
