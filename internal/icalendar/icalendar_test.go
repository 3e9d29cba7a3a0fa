package icalendar

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/council/internal/models"
)

func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

func TestExport(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	meetings := []models.Meeting{
		{
			ID: "m1", MeetingDate: "2025-01-14", MeetingTime: "18:30:00", EndTime: "20:00:00",
			Committee: "Education", MeetingType: models.MeetingTypeStandingCommittee,
			Location: "Council Chambers", DocumentURL: "/files/Agenda-m1.pdf",
		},
		{
			ID: "m2", MeetingDate: "2025-01-20", MeetingTime: "19:00",
			MeetingType: models.MeetingTypeCityCouncil, DocStatus: models.DocStatusCancelled,
		},
		{ID: "bad", MeetingDate: "someday", MeetingTime: "19:00"},
	}

	out, skipped := Export(meetings, ExportOptions{
		Location: ny,
		BaseURL:  "https://council.example.org/",
		Name:     "Council",
		Now:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	if len(skipped) != 1 || skipped[0] != "bad" {
		t.Errorf("skipped = %v", skipped)
	}
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + ProdID,
		"X-WR-CALNAME:Council",
		"UID:m1@council",
		"DTSTART:20250114T233000Z",
		"DTEND:20250115T010000Z",
		"SUMMARY:Education – Standing Committee Meeting",
		"URL:https://council.example.org/files/Agenda-m1.pdf",
		"UID:m2@council",
		"DTEND:20250121T010000Z",
		"STATUS:CANCELLED",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
	if strings.Count(out, "BEGIN:VEVENT") != 2 {
		t.Errorf("events = %d, want 2", strings.Count(out, "BEGIN:VEVENT"))
	}
}

func TestSpanDefaultsToOneHour(t *testing.T) {
	start, end, err := Span(&models.Meeting{MeetingDate: "2025-01-14", MeetingTime: "09:00"}, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if end.Sub(start) != DefaultDuration {
		t.Errorf("duration = %v", end.Sub(start))
	}
	// An end before the start is ignored.
	_, end, _ = Span(&models.Meeting{MeetingDate: "2025-01-14", MeetingTime: "09:00", EndTime: "08:00"}, time.UTC)
	if end.Sub(start) != DefaultDuration {
		t.Errorf("inverted end not ignored: %v", end)
	}
}

const sample = `
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//EN
BEGIN:VEVENT
UID:weekly
DTSTAMP:20250101T000000Z
DTSTART:20250106T180000Z
DTEND:20250106T193000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20250113T180000Z
SUMMARY:Finance Committee
LOCATION:Room 2
END:VEVENT
BEGIN:VEVENT
UID:council
DTSTAMP:20250101T000000Z
DTSTART:20250115T190000Z
SUMMARY:City Council Meeting
END:VEVENT
BEGIN:VEVENT
UID:cancelled
DTSTAMP:20250101T000000Z
DTSTART:20250116T190000Z
STATUS:CANCELLED
SUMMARY:Cancelled
END:VEVENT
BEGIN:VEVENT
UID:allday
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250110
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:later
DTSTAMP:20250101T000000Z
DTSTART:20250301T190000Z
SUMMARY:Out of range
END:VEVENT
END:VCALENDAR
`

func TestImport(t *testing.T) {
	got, err := Import(strings.NewReader(crlf(sample)), ImportOptions{
		From:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Committee: "Finance",
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	want := []struct {
		date, clock, typ, committee string
	}{
		{"2025-01-06", "18:00:00", models.MeetingTypeStandingCommittee, "Finance"},
		{"2025-01-15", "19:00:00", models.MeetingTypeCityCouncil, ""},
		{"2025-01-20", "18:00:00", models.MeetingTypeStandingCommittee, "Finance"},
		{"2025-01-27", "18:00:00", models.MeetingTypeStandingCommittee, "Finance"},
	}
	if len(got) != len(want) {
		t.Fatalf("imported %d meetings: %+v", len(got), got)
	}
	for i, w := range want {
		m := got[i]
		if m.MeetingDate != w.date || m.MeetingTime != w.clock || m.MeetingType != w.typ || m.Committee != w.committee {
			t.Errorf("meeting %d = %+v, want %+v", i, m, w)
		}
	}
	if got[0].EndTime != "19:30:00" || got[0].Location != "Room 2" || got[0].Subject != "Finance Committee" {
		t.Errorf("first meeting details = %+v", got[0])
	}
}

func TestImportRecurringNeedsRange(t *testing.T) {
	if _, err := Import(strings.NewReader(crlf(sample)), ImportOptions{}); err == nil {
		t.Error("expected error for recurring event without a range")
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	if _, err := Import(strings.NewReader("not a calendar"), ImportOptions{}); err == nil {
		t.Error("expected decode error")
	}
}
