// Package meetingservice implements the meeting store used by the calendar,
// the HTTP API and the MCP tools: validation, persistence and agenda
// generation requests.
package meetingservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/docgen"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/storage"
	"github.com/starford/council/internal/store"
)

// UpcomingLimit caps the upcoming meetings list.
const UpcomingLimit = 50

// Event kinds passed to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a meeting is created, updated or deleted.
type EventCallback func(kind string, id string)

// Generator queues agenda generation.
type Generator interface {
	RequestDocumentGeneration(ctx context.Context, id string) error
}

// Service coordinates the repository, the agenda files and the generator.
type Service struct {
	repo    store.Repository
	files   storage.Provider
	gen     Generator
	logger  *slog.Logger
	onEvent EventCallback
	now     func() time.Time
}

// Verify *Service satisfies store.Store at compile time.
var _ store.Store = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithEventCallback registers a callback for meeting changes.
func WithEventCallback(cb EventCallback) Option {
	return func(s *Service) { s.onEvent = cb }
}

// WithClock sets the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a meeting service.
func NewService(repo store.Repository, files storage.Provider, gen Generator, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		files:  files,
		gen:    gen,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns meetings matching f.
func (s *Service) List(ctx context.Context, f models.MeetingFilter, order models.Order) ([]models.Meeting, error) {
	return s.repo.List(ctx, f, order)
}

// Upcoming returns draft meetings from today on, earliest first.
func (s *Service) Upcoming(ctx context.Context, committee string) ([]models.Meeting, error) {
	draft := models.DocStatusDraft
	return s.repo.List(ctx, models.MeetingFilter{
		From:      s.now().Format(calendar.DateLayout),
		Committee: committee,
		DocStatus: &draft,
		Limit:     UpcomingLimit,
	}, models.OrderDateTime)
}

// Get returns one meeting.
func (s *Service) Get(ctx context.Context, id string) (*models.Meeting, error) {
	return s.repo.Get(ctx, id)
}

// Insert validates and stores m, then queues its agenda.
func (s *Service) Insert(ctx context.Context, m *models.Meeting) (string, error) {
	// The document reference is owned by the generator.
	m.DocumentURL, m.DocChecksum = "", ""
	normalizeClock(&m.MeetingTime)
	normalizeClock(&m.EndTime)
	if err := s.validate(ctx, m); err != nil {
		return "", err
	}
	id, err := s.repo.Insert(ctx, m)
	if err != nil {
		return "", err
	}
	s.logger.Info("meeting created", slog.String("meeting_id", id), slog.String("date", m.MeetingDate))
	s.afterSave(ctx, id)
	s.emit(EventCreated, id)
	return id, nil
}

// Update validates the patched meeting, stores it and queues a fresh agenda.
func (s *Service) Update(ctx context.Context, id string, p models.MeetingPatch) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	p.MeetingTime = normalizedClock(p.MeetingTime)
	p.EndTime = normalizedClock(p.EndTime)
	p.Apply(current)
	if err := s.validate(ctx, current); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, p); err != nil {
		return err
	}
	s.logger.Info("meeting updated", slog.String("meeting_id", id))
	s.afterSave(ctx, id)
	s.emit(EventUpdated, id)
	return nil
}

// Delete removes the meeting and its agenda file.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(docgen.FileName(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("meeting agenda not removed", slog.String("meeting_id", id), slog.String("error", err.Error()))
	}
	s.logger.Info("meeting deleted", slog.String("meeting_id", id))
	s.emit(EventDeleted, id)
	return nil
}

// RequestDocumentGeneration queues the agenda of an existing meeting.
func (s *Service) RequestDocumentGeneration(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.gen.RequestDocumentGeneration(ctx, id); err != nil {
		return fmt.Errorf("request generation: %w", err)
	}
	return nil
}

// Committees returns the known committees.
func (s *Service) Committees(ctx context.Context) ([]models.Committee, error) {
	return s.repo.Committees(ctx)
}

// afterSave queues generation; a failure is logged and left to the sweep.
func (s *Service) afterSave(ctx context.Context, id string) {
	if err := s.gen.RequestDocumentGeneration(ctx, id); err != nil {
		s.logger.Warn("agenda generation not queued",
			slog.String("meeting_id", id),
			slog.String("error", err.Error()))
	}
}

func (s *Service) emit(kind, id string) {
	if s.onEvent != nil {
		s.onEvent(kind, id)
	}
}

func (s *Service) validate(ctx context.Context, m *models.Meeting) error {
	committees, err := s.repo.Committees(ctx)
	if err != nil {
		return err
	}
	known := make([]any, 0, len(committees))
	for _, c := range committees {
		known = append(known, c.Name)
	}
	types := make([]any, 0, len(models.MeetingTypes))
	for _, t := range models.MeetingTypes {
		types = append(types, t)
	}

	return apperr.Validation(validation.ValidateStruct(m,
		validation.Field(&m.MeetingDate, validation.Required, validation.Date(calendar.DateLayout)),
		validation.Field(&m.MeetingTime, validation.Required, validation.By(clock)),
		validation.Field(&m.EndTime, validation.By(clock), validation.By(after(m.MeetingTime))),
		validation.Field(&m.MeetingType, validation.Required, validation.In(types...).Error("must be a known meeting type")),
		validation.Field(&m.Committee, validation.In(known...).Error("must be a known committee")),
		validation.Field(&m.DocStatus, validation.In(models.DocStatusDraft, models.DocStatusSubmitted, models.DocStatusCancelled)),
	))
}

// clock accepts HH:MM and HH:MM:SS.
func clock(value any) error {
	v, _ := value.(string)
	if v == "" {
		return nil
	}
	if _, ok := parseClock(v); !ok {
		return errors.New("must be a time in HH:MM or HH:MM:SS format")
	}
	return nil
}

func after(start string) validation.RuleFunc {
	return func(value any) error {
		v, _ := value.(string)
		if v == "" {
			return nil
		}
		end, ok1 := parseClock(v)
		begin, ok2 := parseClock(start)
		if ok1 && ok2 && !end.After(begin) {
			return errors.New("must be after the start time")
		}
		return nil
	}
}

// clockLayout is the stored time of day. Fixed width keeps text order equal to
// time order.
const clockLayout = "15:04:05"

// normalizeClock rewrites a parseable time of day into clockLayout, so 9:00
// becomes 09:00:00. Anything else is left for validation to reject.
func normalizeClock(v *string) {
	if t, ok := parseClock(*v); ok {
		*v = t.Format(clockLayout)
	}
}

func normalizedClock(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	normalizeClock(&out)
	return &out
}

func parseClock(v string) (time.Time, bool) {
	for _, layout := range []string{clockLayout, "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
