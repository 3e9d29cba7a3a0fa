// Package models defines the domain types for the council calendar.
package models

import "time"

// Meeting types offered by the scheduling form.
const (
	MeetingTypeCityCouncil       = "City Council Meeting"
	MeetingTypeStandingCommittee = "Standing Committee Meeting"
)

// MeetingTypes lists every accepted meeting type.
var MeetingTypes = []string{MeetingTypeCityCouncil, MeetingTypeStandingCommittee}

// DocStatus is the lifecycle state of a meeting record.
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

// Meeting is a scheduled council meeting.
//
// MeetingDate is a plain calendar date (YYYY-MM-DD) and MeetingTime/EndTime are
// wall-clock times (HH:MM or HH:MM:SS); neither carries a time zone.
type Meeting struct {
	ID          string    `json:"id"`
	MeetingDate string    `json:"meeting_date"`
	MeetingTime string    `json:"meeting_time"`
	EndTime     string    `json:"end_time,omitempty"`
	Committee   string    `json:"committee,omitempty"`
	MeetingType string    `json:"meeting_type"`
	Location    string    `json:"location,omitempty"`
	Address     string    `json:"address,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Note        string    `json:"note,omitempty"`
	DocumentURL string    `json:"document_url,omitempty"`
	DocChecksum string    `json:"-"`
	DocStatus   DocStatus `json:"doc_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasDocument reports whether a generated agenda is attached.
func (m *Meeting) HasDocument() bool {
	return m.DocumentURL != ""
}

// TimeLabel returns the start time without seconds, e.g. "18:30".
func (m *Meeting) TimeLabel() string {
	return ClockLabel(m.MeetingTime)
}

// Title is the short label shown on a calendar cell.
func (m *Meeting) Title() string {
	return m.TimeLabel() + " Meeting"
}

// ClockLabel strips the seconds from an HH:MM:SS value.
func ClockLabel(t string) string {
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}

// MeetingPatch carries the fields of a partial update. Nil fields are left untouched.
type MeetingPatch struct {
	MeetingDate *string    `json:"meeting_date,omitempty"`
	MeetingTime *string    `json:"meeting_time,omitempty"`
	EndTime     *string    `json:"end_time,omitempty"`
	Committee   *string    `json:"committee,omitempty"`
	MeetingType *string    `json:"meeting_type,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Address     *string    `json:"address,omitempty"`
	Subject     *string    `json:"subject,omitempty"`
	Note        *string    `json:"note,omitempty"`
	DocStatus   *DocStatus `json:"doc_status,omitempty"`
}

// Apply copies the set fields of p onto m.
func (p MeetingPatch) Apply(m *Meeting) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.MeetingDate, p.MeetingDate)
	set(&m.MeetingTime, p.MeetingTime)
	set(&m.EndTime, p.EndTime)
	set(&m.Committee, p.Committee)
	set(&m.MeetingType, p.MeetingType)
	set(&m.Location, p.Location)
	set(&m.Address, p.Address)
	set(&m.Subject, p.Subject)
	set(&m.Note, p.Note)
	if p.DocStatus != nil {
		m.DocStatus = *p.DocStatus
	}
}

// Order selects the sort order of a meeting listing.
type Order string

const (
	// OrderTime sorts by start time only, the order a single month grid needs.
	OrderTime Order = "meeting_time"
	// OrderDateTime sorts by date, then start time.
	OrderDateTime Order = "meeting_date"
)

// MeetingFilter narrows a meeting listing. Zero values mean "no constraint".
type MeetingFilter struct {
	From        string
	To          string
	Committee   string
	DocStatus   *DocStatus
	HasDocument *bool
	Limit       int
}

// Committee is a standing committee of the council.
type Committee struct {
	Name string `json:"name"`
}
