// Package view holds the per-client calendar state: the displayed month grid,
// the meetings placed on it and the click gestures bound to them. It turns
// gestures into navigation intents and converts store failures into user
// notifications instead of errors that would break the page.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/gesture"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/notify"
	"github.com/starford/council/internal/poller"
	"github.com/starford/council/internal/store"
)

// User-visible messages.
const (
	MsgLoadFailed      = "Could not load meetings – please try again."
	MsgMeetingGone     = "Meeting no longer exists."
	MsgMeetingFailed   = "Could not load meeting – please try again."
	MsgNoDocument      = "No agenda PDF attached yet."
	MsgDeleted         = "Meeting deleted"
	MsgDeleteFailed    = "Could not delete meeting – please try again."
	MsgConfirmRequired = "confirmation required"
)

// clickTimeout bounds the store round trip behind a double click.
const clickTimeout = 10 * time.Second

// Navigator receives the intents produced by click gestures.
type Navigator interface {
	OpenDetail(ctx context.Context, client string, m *models.Meeting)
	OpenDocument(ctx context.Context, client string, m *models.Meeting)
}

// Polls is the part of the generation poller the controller drives.
type Polls interface {
	Start(ctx context.Context, id string) error
	Resume(m *models.Meeting) bool
	Cancel(id string) bool
	State(id string) (poller.PollState, bool)
}

// EventView is a meeting as shown on a calendar cell.
type EventView struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Time        string           `json:"time"`
	Committee   string           `json:"committee,omitempty"`
	MeetingType string           `json:"meeting_type"`
	DocumentURL string           `json:"document_url,omitempty"`
	DocStatus   models.DocStatus `json:"doc_status"`
}

// CellView is a grid cell with its events.
type CellView struct {
	calendar.Cell
	Events []EventView `json:"events"`
}

// MonthView is the rendered calendar for one client.
type MonthView struct {
	Client     string     `json:"client"`
	Month      string     `json:"month"`
	Title      string     `json:"title"`
	Prev       string     `json:"prev"`
	Next       string     `json:"next"`
	Rows       int        `json:"rows"`
	RangeStart string     `json:"range_start"`
	RangeEnd   string     `json:"range_end"`
	Cells      []CellView `json:"cells"`
	// LoadError is set when meetings could not be fetched; the grid is still shown.
	LoadError string `json:"load_error,omitempty"`
}

type session struct {
	index    *calendar.Index
	gestures *gesture.Set
}

// Controller owns the view state of every connected client.
type Controller struct {
	store    store.Store
	polls    Polls
	nav      Navigator
	notifier notify.Notifier
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewController creates a Controller.
func NewController(s store.Store, polls Polls, nav Navigator, n notify.Notifier, opts ...Option) *Controller {
	if n == nil {
		n = notify.Discard
	}
	c := &Controller{
		store:    s,
		polls:    polls,
		nav:      nav,
		notifier: n,
		window:   gesture.DefaultWindow,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: map[string]*session{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Month builds the grid containing ref for client, loads its meetings and
// binds a click gesture to every placed meeting. A previous month of the
// same client is torn down first.
func (c *Controller) Month(ctx context.Context, client string, ref time.Time) *MonthView {
	m := calendar.Build(ref, c.now())
	ix := calendar.NewIndex(m)

	v := &MonthView{
		Client:     client,
		Month:      m.Key(),
		Title:      m.Title(),
		Prev:       m.Prev().Format("2006-01"),
		Next:       m.Next().Format("2006-01"),
		Rows:       m.Rows(),
		RangeStart: m.RangeStart,
		RangeEnd:   m.RangeEnd,
	}

	records, err := c.store.List(ctx, models.MeetingFilter{From: m.RangeStart, To: m.RangeEnd}, models.OrderTime)
	if err != nil {
		c.logger.Warn("view: list meetings failed",
			slog.String("client", client),
			slog.String("month", m.Key()),
			slog.String("error", err.Error()))
		c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Message: MsgLoadFailed, Client: client})
		v.LoadError = MsgLoadFailed
	} else {
		ix.Place(records)
	}

	gs := gesture.NewSet(c.window)
	for _, r := range records {
		if _, ok := ix.Lookup(r.ID); !ok {
			continue
		}
		id := r.ID
		gs.Bind(id, func() { c.single(client, id) }, func() { c.double(client, id) })
	}

	c.mu.Lock()
	if old, ok := c.sessions[client]; ok {
		old.gestures.Reset()
	}
	c.sessions[client] = &session{index: ix, gestures: gs}
	v.Cells = cellViews(m, ix)
	c.mu.Unlock()

	return v
}

func cellViews(m *calendar.Month, ix *calendar.Index) []CellView {
	cells := make([]CellView, len(m.Cells))
	for i, cell := range m.Cells {
		cells[i] = CellView{Cell: cell, Events: []EventView{}}
		if !cell.InCurrentMonth {
			continue
		}
		for _, r := range ix.Events(cell.DateKey) {
			cells[i].Events = append(cells[i].Events, EventView{
				ID:          r.ID,
				Title:       r.Title(),
				Time:        r.TimeLabel(),
				Committee:   r.Committee,
				MeetingType: r.MeetingType,
				DocumentURL: r.DocumentURL,
				DocStatus:   r.DocStatus,
			})
		}
	}
	return cells
}

// Click records a raw click on a displayed meeting.
func (c *Controller) Click(client, id string) error {
	c.mu.Lock()
	s, ok := c.sessions[client]
	c.mu.Unlock()
	if !ok || !s.gestures.Click(id) {
		return fmt.Errorf("view: meeting %s not displayed: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// single opens the meeting form.
func (c *Controller) single(client, id string) {
	c.mu.Lock()
	s, ok := c.sessions[client]
	var m models.Meeting
	if ok {
		m, ok = s.index.Lookup(id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.nav.OpenDetail(context.Background(), client, &m)
}

// double opens the agenda if one exists. The record is fetched again since
// generation may have finished after the month was rendered.
func (c *Controller) double(client, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), clickTimeout)
	defer cancel()

	m, err := c.fetch(ctx, client, id)
	if err != nil {
		return
	}
	if !m.HasDocument() {
		c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelWarning, Message: MsgNoDocument, MeetingID: id, Client: client})
		return
	}
	c.nav.OpenDocument(ctx, client, m)
}

// OpenMeeting loads a meeting for its detail view and resumes polling when
// its agenda is still missing.
func (c *Controller) OpenMeeting(ctx context.Context, client, id string) (*models.Meeting, error) {
	m, err := c.fetch(ctx, client, id)
	if err != nil {
		return nil, err
	}
	c.polls.Resume(m)
	return m, nil
}

// Generate starts agenda generation for a meeting and polls for the result.
func (c *Controller) Generate(ctx context.Context, id string) error {
	return c.polls.Start(ctx, id)
}

// PollState returns the active poll for a meeting.
func (c *Controller) PollState(id string) (poller.PollState, bool) {
	return c.polls.State(id)
}

// Leave stops polling for a meeting whose detail view was closed.
func (c *Controller) Leave(id string) bool {
	return c.polls.Cancel(id)
}

// Delete removes a meeting. Deletion is irreversible, so it always needs an
// explicit confirmation.
func (c *Controller) Delete(ctx context.Context, client, id string, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("view: %s: %w", MsgConfirmRequired, apperr.ErrConflict)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		msg := MsgDeleteFailed
		if errors.Is(err, apperr.ErrNotFound) {
			msg = MsgMeetingGone
		}
		c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Message: msg, MeetingID: id, Client: client})
		return err
	}
	c.polls.Cancel(id)
	c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelSuccess, Message: MsgDeleted, MeetingID: id, Client: client})
	return nil
}

// Refresh updates the displayed copy of m in every client showing it.
func (c *Controller) Refresh(m *models.Meeting) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sessions {
		if s.index.Replace(*m) {
			n++
		}
	}
	return n
}

// CloseClient tears down a client's view; pending gestures become no-ops.
func (c *Controller) CloseClient(client string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[client]
	if !ok {
		return false
	}
	s.gestures.Reset()
	delete(c.sessions, client)
	return true
}

// Clients returns the number of clients with a rendered month.
func (c *Controller) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close tears down every client.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for client, s := range c.sessions {
		s.gestures.Reset()
		delete(c.sessions, client)
	}
}

// fetch loads a meeting and turns failures into notifications.
func (c *Controller) fetch(ctx context.Context, client, id string) (*models.Meeting, error) {
	m, err := c.store.Get(ctx, id)
	if err == nil {
		return m, nil
	}
	msg := MsgMeetingFailed
	if errors.Is(err, apperr.ErrNotFound) {
		msg = MsgMeetingGone
	} else {
		c.logger.Warn("view: get meeting failed", slog.String("meeting_id", id), slog.String("error", err.Error()))
	}
	c.notifier.Notify(ctx, notify.Notification{Level: notify.LevelError, Message: msg, MeetingID: id, Client: client})
	return nil, err
}
