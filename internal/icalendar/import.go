package icalendar

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/models"
)

// DefaultMaxOccurrences caps the expansion of one recurring event.
const DefaultMaxOccurrences = 500

// ImportOptions controls calendar import.
type ImportOptions struct {
	// Location converts event instants to wall-clock meeting times. Nil means UTC.
	Location *time.Location
	// From and To bound the imported occurrences; To is exclusive. Recurring
	// events need both.
	From, To time.Time
	// MeetingType is used for events whose summary does not name the city council.
	MeetingType string
	Committee   string
	// MaxOccurrences caps each recurring event; 0 selects DefaultMaxOccurrences.
	MaxOccurrences int
}

// Import reads VEVENTs from r and returns them as unsaved meetings, ordered by
// date and time. Recurring events are expanded inside [From, To); cancelled
// and all-day events are skipped.
func Import(r io.Reader, opts ImportOptions) ([]models.Meeting, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if opts.MeetingType == "" {
		opts.MeetingType = models.MeetingTypeStandingCommittee
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = DefaultMaxOccurrences
	}

	dec := ical.NewDecoder(r)
	seen := map[string]bool{}
	var out []models.Meeting

	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("icalendar: decode: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			if status := propText(comp, ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
				continue
			}
			startProp := comp.Props.Get(ical.PropDateTimeStart)
			if startProp == nil || startProp.ValueType() == ical.ValueDate {
				continue
			}
			start, err := startProp.DateTime(loc)
			if err != nil {
				return nil, fmt.Errorf("icalendar: DTSTART: %w", err)
			}
			var duration time.Duration
			if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
				if end, err := endProp.DateTime(loc); err == nil && end.After(start) {
					duration = end.Sub(start)
				}
			}

			starts := []time.Time{start}
			if rr := comp.Props.Get(ical.PropRecurrenceRule); rr != nil {
				starts, err = expand(comp, rr.Value, start, loc, opts)
				if err != nil {
					return nil, err
				}
			} else if !inRange(start, opts) {
				continue
			}

			for _, s := range starts {
				m := toMeeting(comp, s.In(loc), duration, opts)
				key := m.MeetingDate + "|" + m.MeetingTime + "|" + m.Subject
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, m)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MeetingDate != out[j].MeetingDate {
			return out[i].MeetingDate < out[j].MeetingDate
		}
		return out[i].MeetingTime < out[j].MeetingTime
	})
	return out, nil
}

func expand(comp *ical.Component, rule string, start time.Time, loc *time.Location, opts ImportOptions) ([]time.Time, error) {
	if opts.From.IsZero() || opts.To.IsZero() {
		return nil, fmt.Errorf("icalendar: recurring event %q needs an import range", propText(comp, ical.PropSummary))
	}
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("icalendar: RRULE %q: %w", rule, err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range comp.Props[ical.PropExceptionDates] {
		if t, err := ex.DateTime(loc); err == nil {
			set.ExDate(t)
		}
	}

	// Between is inclusive at both ends; To is exclusive here.
	occ := set.Between(opts.From, opts.To.Add(-time.Nanosecond), true)
	if len(occ) > opts.MaxOccurrences {
		occ = occ[:opts.MaxOccurrences]
	}
	return occ, nil
}

func inRange(t time.Time, opts ImportOptions) bool {
	if !opts.From.IsZero() && t.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && !t.Before(opts.To) {
		return false
	}
	return true
}

func toMeeting(comp *ical.Component, start time.Time, duration time.Duration, opts ImportOptions) models.Meeting {
	summary := propText(comp, ical.PropSummary)
	m := models.Meeting{
		MeetingDate: start.Format(calendar.DateLayout),
		MeetingTime: start.Format("15:04:05"),
		MeetingType: opts.MeetingType,
		Committee:   opts.Committee,
		Location:    propText(comp, ical.PropLocation),
		Subject:     summary,
		Note:        propText(comp, ical.PropDescription),
		DocStatus:   models.DocStatusDraft,
	}
	if strings.Contains(strings.ToLower(summary), "city council") {
		m.MeetingType = models.MeetingTypeCityCouncil
		m.Committee = ""
	}
	if duration > 0 {
		end := start.Add(duration)
		if end.Format(calendar.DateLayout) == m.MeetingDate {
			m.EndTime = end.Format("15:04:05")
		}
	}
	return m
}

func propText(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	if s, err := p.Text(); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(p.Value)
}
