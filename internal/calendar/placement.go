package calendar

import (
	"slices"

	"github.com/starford/council/internal/models"
)

// Index maps the in-month date keys of a grid to the meetings placed on them.
type Index struct {
	keys    map[string]struct{}
	buckets map[string][]models.Meeting
}

// NewIndex creates an empty index over the in-month cells of m.
func NewIndex(m *Month) *Index {
	keys := make(map[string]struct{}, len(m.Cells))
	for _, c := range m.Cells {
		if c.InCurrentMonth {
			keys[c.DateKey] = struct{}{}
		}
	}
	return &Index{keys: keys, buckets: map[string][]models.Meeting{}}
}

// Place replaces the current mapping with records.
//
// Records must already be sorted by start time; arrival order is kept per day.
// Records dated outside the grid are dropped.
func (ix *Index) Place(records []models.Meeting) {
	buckets := make(map[string][]models.Meeting)
	for _, r := range records {
		if _, ok := ix.keys[r.MeetingDate]; !ok {
			continue
		}
		buckets[r.MeetingDate] = append(buckets[r.MeetingDate], r)
	}
	ix.buckets = buckets
}

// Events returns the meetings placed on the given date key.
func (ix *Index) Events(dateKey string) []models.Meeting {
	return ix.buckets[dateKey]
}

// Lookup finds a placed meeting by id.
func (ix *Index) Lookup(id string) (models.Meeting, bool) {
	for _, b := range ix.buckets {
		for _, m := range b {
			if m.ID == id {
				return m, true
			}
		}
	}
	return models.Meeting{}, false
}

// Len returns the number of placed meetings.
func (ix *Index) Len() int {
	n := 0
	for _, b := range ix.buckets {
		n += len(b)
	}
	return n
}

// Replace swaps in a fresher copy of a placed meeting. It keeps the meeting's
// position when the date is unchanged. A meeting whose date moved goes to its
// new day ahead of the first later start, or is dropped when that day is
// outside the grid.
// It reports false when the meeting is not placed.
func (ix *Index) Replace(m models.Meeting) bool {
	b := ix.buckets[m.MeetingDate]
	for i := range b {
		if b[i].ID == m.ID {
			b[i] = m
			return true
		}
	}
	for key, old := range ix.buckets {
		for i := range old {
			if old[i].ID != m.ID {
				continue
			}
			rest := append(old[:i:i], old[i+1:]...)
			if len(rest) == 0 {
				delete(ix.buckets, key)
			} else {
				ix.buckets[key] = rest
			}
			if _, ok := ix.keys[m.MeetingDate]; ok {
				day := ix.buckets[m.MeetingDate]
				at := len(day)
				for j := range day {
					if day[j].MeetingTime > m.MeetingTime {
						at = j
						break
					}
				}
				ix.buckets[m.MeetingDate] = slices.Insert(day, at, m)
			}
			return true
		}
	}
	return false
}
