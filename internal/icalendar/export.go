// Package icalendar converts meetings to and from iCalendar (RFC 5545) data.
package icalendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/models"
)

// ProdID identifies exported calendars.
const ProdID = "-//Starford//Council Calendar//EN"

// DefaultDuration is used for meetings without an end time.
const DefaultDuration = time.Hour

// ExportOptions controls calendar export.
type ExportOptions struct {
	// Location interprets the wall-clock meeting times. Nil means UTC.
	Location *time.Location
	// BaseURL is prefixed to agenda links, e.g. "https://council.example.org".
	BaseURL string
	Name    string
	Now     time.Time
}

// Export renders meetings as a VCALENDAR with one VEVENT per meeting.
// Meetings with unparseable dates or times are skipped.
func Export(meetings []models.Meeting, opts ExportOptions) (string, []string) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProdID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	var skipped []string
	for _, m := range meetings {
		start, end, err := Span(&m, loc)
		if err != nil {
			skipped = append(skipped, m.ID)
			continue
		}

		ev := cal.AddEvent(m.ID + "@council")
		ev.SetDtStampTime(now)
		if !m.CreatedAt.IsZero() {
			ev.SetCreatedTime(m.CreatedAt)
		}
		if !m.UpdatedAt.IsZero() {
			ev.SetModifiedAt(m.UpdatedAt)
		}
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		ev.SetSummary(Summary(&m))
		if place := joinNonEmpty(", ", m.Location, m.Address); place != "" {
			ev.SetLocation(place)
		}
		if desc := joinNonEmpty("\n\n", m.Subject, m.Note); desc != "" {
			ev.SetDescription(desc)
		}
		if m.HasDocument() {
			ev.SetURL(strings.TrimRight(opts.BaseURL, "/") + m.DocumentURL)
		}
		if m.DocStatus == models.DocStatusCancelled {
			ev.SetStatus(ics.ObjectStatusCancelled)
		}
	}
	return cal.Serialize(), skipped
}

// Span returns the start and end instants of a meeting in loc.
func Span(m *models.Meeting, loc *time.Location) (time.Time, time.Time, error) {
	start, err := wallClock(m.MeetingDate, m.MeetingTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := start.Add(DefaultDuration)
	if m.EndTime != "" {
		e, err := wallClock(m.MeetingDate, m.EndTime, loc)
		if err == nil && e.After(start) {
			end = e
		}
	}
	return start, end, nil
}

// Summary is the event title, e.g. "Education – Standing Committee Meeting".
func Summary(m *models.Meeting) string {
	if m.Committee != "" {
		return m.Committee + " – " + m.MeetingType
	}
	return m.MeetingType
}

func wallClock(date, clock string, loc *time.Location) (time.Time, error) {
	layout := calendar.DateLayout + " 15:04:05"
	if len(clock) == len("15:04") {
		layout = calendar.DateLayout + " 15:04"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("icalendar: meeting time %q %q: %w", date, clock, err)
	}
	return t, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
