package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/icalendar"
	"github.com/starford/council/internal/meetingservice"
	"github.com/starford/council/internal/models"
)

// ImportParams selects what RunImport reads and how.
type ImportParams struct {
	// File is an .ics file path; "-" reads stdin.
	File string
	// From and To bound the imported occurrences; To is exclusive.
	From, To    time.Time
	Committee   string
	MeetingType string
	// DryRun lists the meetings without storing them.
	DryRun bool
	// Generate renders each agenda before returning instead of leaving it
	// to the server's sweep.
	Generate bool
}

// ImportReport summarises one import run.
type ImportReport struct {
	Read     int
	Inserted int
	Rejected int
}

// noQueue drops generation requests; the command has no workers running.
type noQueue struct{}

func (noQueue) RequestDocumentGeneration(context.Context, string) error { return nil }

// RunImport reads meetings from an iCalendar file and stores them.
func RunImport(ctx context.Context, p ImportParams, opts ...Option) (*ImportReport, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := newLogger(app.config, os.Stderr)

	c, err := openCore(ctx, app.config, logger, nil)
	if err != nil {
		return nil, err
	}
	defer c.db.Close()

	var r io.Reader = os.Stdin
	if p.File != "-" {
		f, err := os.Open(p.File)
		if err != nil {
			return nil, fmt.Errorf("open calendar: %w", err)
		}
		defer f.Close()
		r = f
	}

	items, err := icalendar.Import(r, icalendar.ImportOptions{
		Location:    c.loc,
		From:        p.From,
		To:          p.To,
		MeetingType: p.MeetingType,
		Committee:   p.Committee,
	})
	if err != nil {
		return nil, err
	}

	svc := meetingservice.NewService(c.db, c.files, noQueue{}, meetingservice.WithLogger(logger))
	return importMeetings(ctx, svc, c.gen, items, p, app.out, logger), nil
}

type meetingInserter interface {
	Insert(ctx context.Context, m *models.Meeting) (string, error)
}

type agendaRenderer interface {
	Generate(ctx context.Context, id string) error
}

func importMeetings(ctx context.Context, svc meetingInserter, gen agendaRenderer, items []models.Meeting, p ImportParams, out io.Writer, logger *slog.Logger) *ImportReport {
	rep := &ImportReport{Read: len(items)}
	for i := range items {
		m := &items[i]
		if p.DryRun {
			fmt.Fprintf(out, "%s %s  %s\n", m.MeetingDate, m.TimeLabel(), icalendar.Summary(m))
			continue
		}
		id, err := svc.Insert(ctx, m)
		if err != nil {
			rep.Rejected++
			var verr *apperr.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(out, "skip %s %s: %s\n", m.MeetingDate, m.TimeLabel(), verr.Error())
				continue
			}
			logger.Error("import insert failed",
				slog.String("date", m.MeetingDate),
				slog.String("error", err.Error()))
			continue
		}
		rep.Inserted++
		fmt.Fprintf(out, "added %s %s  %s [%s]\n", m.MeetingDate, m.TimeLabel(), icalendar.Summary(m), id)

		if p.Generate {
			if err := gen.Generate(ctx, id); err != nil {
				logger.Warn("agenda generation failed",
					slog.String("meeting_id", id),
					slog.String("error", err.Error()))
			}
		}
	}
	fmt.Fprintf(out, "%d read, %d added, %d rejected\n", rep.Read, rep.Inserted, rep.Rejected)
	return rep
}
