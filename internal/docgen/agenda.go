// Package docgen renders meeting agendas to PDF and attaches them to their
// meeting records.
package docgen

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/models"
)

//go:embed templates/*.tmpl templates/agenda.css
var templateFS embed.FS

// Template names, one per meeting type.
const (
	TemplateCityCouncil       = "city_council"
	TemplateStandingCommittee = "standing_committee"
)

// FilePrefix and URLPrefix form the stored name and public URL of an agenda.
const (
	FilePrefix = "Agenda-"
	URLPrefix  = "/files/"
)

// FileName returns the stored agenda file name for a meeting id.
func FileName(id string) string {
	return FilePrefix + id + ".pdf"
}

// FileURL returns the document reference recorded on the meeting.
func FileURL(id string) string {
	return URLPrefix + FileName(id)
}

// MeetingID extracts the meeting id from an agenda file name.
func MeetingID(name string) (string, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "", false
	}
	id := name[len(FilePrefix) : len(name)-len(".pdf")]
	if id == "" {
		return "", false
	}
	return id, true
}

// TemplateFor picks the agenda layout for a meeting type.
func TemplateFor(meetingType string) string {
	if meetingType == models.MeetingTypeCityCouncil {
		return TemplateCityCouncil
	}
	return TemplateStandingCommittee
}

type agendaData struct {
	Title     string
	CSS       template.CSS
	Meeting   *models.Meeting
	DateLabel string
	TimeLabel string
}

// Agenda renders standalone agenda HTML. Styles are inlined so the renderer
// never touches the network.
type Agenda struct {
	css       template.CSS
	templates map[string]*template.Template
}

// NewAgenda parses the embedded agenda templates.
func NewAgenda() (*Agenda, error) {
	css, err := templateFS.ReadFile("templates/agenda.css")
	if err != nil {
		return nil, fmt.Errorf("docgen: read css: %w", err)
	}
	a := &Agenda{css: template.CSS(css), templates: map[string]*template.Template{}}
	for _, name := range []string{TemplateCityCouncil, TemplateStandingCommittee} {
		t, err := template.ParseFS(templateFS, "templates/layout.html.tmpl", "templates/"+name+".html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("docgen: parse %s: %w", name, err)
		}
		a.templates[name] = t
	}
	return a, nil
}

// Render returns the agenda HTML for m.
func (a *Agenda) Render(m *models.Meeting) (string, error) {
	name := TemplateFor(m.MeetingType)
	t, ok := a.templates[name]
	if !ok {
		return "", fmt.Errorf("docgen: no template %q", name)
	}
	data := agendaData{
		Title:     "Agenda - " + m.Title(),
		CSS:       a.css,
		Meeting:   m,
		DateLabel: dateLabel(m.MeetingDate),
		TimeLabel: timeLabel(m),
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html.tmpl", data); err != nil {
		return "", fmt.Errorf("docgen: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func dateLabel(date string) string {
	d, err := time.Parse(calendar.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Monday, January 2, 2006")
}

func timeLabel(m *models.Meeting) string {
	start := models.ClockLabel(m.MeetingTime)
	if end := models.ClockLabel(m.EndTime); end != "" {
		return start + " - " + end
	}
	return start
}
