// Package calendar builds month grids and places meetings onto their cells.
package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the layout of a date key.
const DateLayout = "2006-01-02"

// Cell is one calendar-day slot of a month grid.
//
// Filler cells belong to the adjacent months: they carry a day number but no
// date key, so nothing is ever placed on them.
type Cell struct {
	DayNumber      int    `json:"day"`
	DateKey        string `json:"date,omitempty"`
	InCurrentMonth bool   `json:"in_month"`
	IsToday        bool   `json:"today"`
}

// Month is the grid for one month plus the date range to fetch meetings for.
type Month struct {
	Year       int
	Month      time.Month
	Cells      []Cell
	RangeStart string
	RangeEnd   string
	Leading    int
	Trailing   int
}

// Build computes the month grid containing ref. Dates are plain calendar dates:
// only the year, month and day of ref and today are read.
func Build(ref, today time.Time) *Month {
	year, month := ref.Year(), ref.Month()

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	leading := int(first.Weekday())
	days := DaysIn(year, month)
	rows := (leading + days + 6) / 7
	trailing := rows*7 - (leading + days)

	ty, tm, td := today.Date()

	cells := make([]Cell, 0, rows*7)

	prevDays := first.AddDate(0, 0, -1).Day()
	for i := leading; i > 0; i-- {
		cells = append(cells, Cell{DayNumber: prevDays - i + 1})
	}
	for d := 1; d <= days; d++ {
		cells = append(cells, Cell{
			DayNumber:      d,
			DateKey:        DateKey(year, month, d),
			InCurrentMonth: true,
			IsToday:        ty == year && tm == month && td == d,
		})
	}
	for d := 1; d <= trailing; d++ {
		cells = append(cells, Cell{DayNumber: d})
	}

	return &Month{
		Year:       year,
		Month:      month,
		Cells:      cells,
		RangeStart: DateKey(year, month, 1),
		RangeEnd:   DateKey(year, month, days),
		Leading:    leading,
		Trailing:   trailing,
	}
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateKey formats a YYYY-MM-DD key.
func DateKey(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// Rows returns the number of week rows (5 or 6, 4 for a February starting on Sunday).
func (m *Month) Rows() int {
	return len(m.Cells) / 7
}

// Title returns the month heading, e.g. "January 2025".
func (m *Month) Title() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// Key returns the month as YYYY-MM.
func (m *Month) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Prev returns a reference date inside the previous month.
func (m *Month) Prev() time.Time {
	return time.Date(m.Year, m.Month-1, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns a reference date inside the following month.
func (m *Month) Next() time.Time {
	return time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth parses a YYYY-MM value into a reference date.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid month %q: %w", s, err)
	}
	return t, nil
}
