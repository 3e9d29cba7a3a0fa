// Package poller tracks asynchronous agenda generation for meeting records.
//
// A poll asks the store for the record every interval until its document
// reference is populated (Ready) or the attempt budget is spent (TimedOut).
// At most one poll is active per record: starting a new one cancels the
// previous poll first, and results of a superseded poll are discarded.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/notify"
)

// Defaults give a 60 second budget.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// Status is the state of a poll.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// PollState is a snapshot of one poll.
type PollState struct {
	RecordID    string        `json:"record_id"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Interval    time.Duration `json:"interval"`
	Status      Status        `json:"status"`
}

// Err reports a poll that gave up; it wraps apperr.ErrPollTimeout.
func (s PollState) Err() error {
	if s.Status != StatusTimedOut {
		return nil
	}
	return fmt.Errorf("meeting %s after %d attempts: %w", s.RecordID, s.Attempts, apperr.ErrPollTimeout)
}

// Source is the part of the meeting store a poll needs.
type Source interface {
	Get(ctx context.Context, id string) (*models.Meeting, error)
	RequestDocumentGeneration(ctx context.Context, id string) error
}

type run struct {
	state  PollState
	cancel context.CancelFunc
}

// Poller owns the per-record poll registry.
type Poller struct {
	src         Source
	notifier    notify.Notifier
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	onReady     func(ctx context.Context, m *models.Meeting)
	onFinish    func(st PollState)

	base   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	active map[string]*run
	wg     sync.WaitGroup
}

// New creates a Poller. Polls run until Ready, TimedOut, Cancel or Close.
func New(src Source, n notify.Notifier, opts ...Option) *Poller {
	if n == nil {
		n = notify.Discard
	}
	base, stop := context.WithCancel(context.Background())
	p := &Poller{
		src:         src,
		notifier:    n,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		base:        base,
		stop:        stop,
		active:      map[string]*run{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start requests generation of the record's agenda and polls for the result.
func (p *Poller) Start(ctx context.Context, id string) error {
	if err := p.src.RequestDocumentGeneration(ctx, id); err != nil {
		level, msg := notify.LevelError, "Could not start agenda generation – please try again."
		if errors.Is(err, apperr.ErrNotFound) {
			msg = "Meeting no longer exists."
		}
		p.notifier.Notify(ctx, notify.Notification{Level: level, Message: msg, MeetingID: id})
		return fmt.Errorf("poller: request generation: %w", err)
	}
	p.notifier.Notify(ctx, notify.Notification{
		Level:     notify.LevelInfo,
		Message:   "Agenda generation started…",
		MeetingID: id,
	})
	p.begin(id)
	return nil
}

// Resume starts polling when m has no document yet. It covers a view that is
// rebuilt while generation is still running: an empty document reference is
// the only state carried across reloads. It reports whether a poll started.
func (p *Poller) Resume(m *models.Meeting) bool {
	if m == nil || m.HasDocument() {
		return false
	}
	p.begin(m.ID)
	return true
}

// begin replaces any active poll for id with a fresh one.
func (p *Poller) begin(id string) {
	ctx, cancel := context.WithCancel(p.base)
	r := &run{
		state: PollState{
			RecordID:    id,
			MaxAttempts: p.maxAttempts,
			Interval:    p.interval,
			Status:      StatusPending,
		},
		cancel: cancel,
	}

	p.mu.Lock()
	if p.base.Err() != nil {
		p.mu.Unlock()
		cancel()
		return
	}
	if old, ok := p.active[id]; ok {
		old.cancel()
		old.state.Status = StatusCancelled
		p.logger.Debug("poll superseded", slog.String("meeting_id", id))
	}
	p.active[id] = r
	p.wg.Add(1)
	p.mu.Unlock()

	go p.loop(ctx, r)
}

func (p *Poller) loop(ctx context.Context, r *run) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	id := r.state.RecordID
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		attempts, ok := p.attempt(r)
		if !ok {
			return
		}

		m, err := p.src.Get(ctx, id)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("poll: status query failed",
				slog.String("meeting_id", id),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()))
			if errors.Is(err, apperr.ErrNotFound) {
				if p.finish(r, StatusCancelled) {
					p.notifier.Notify(p.base, notify.Notification{
						Level: notify.LevelError, Message: "Meeting no longer exists.", MeetingID: id,
					})
				}
				return
			}
		}

		switch {
		case err == nil && m.HasDocument():
			if !p.finish(r, StatusReady) {
				return
			}
			// The poll context is cancelled by finish; follow-ups run on the poller's own.
			p.notifier.Notify(p.base, notify.Notification{Level: notify.LevelSuccess, Message: "Agenda ready", MeetingID: id})
			if p.onReady != nil {
				p.onReady(p.base, m)
			}
			return
		case attempts >= r.state.MaxAttempts:
			if !p.finish(r, StatusTimedOut) {
				return
			}
			p.notifier.Notify(p.base, notify.Notification{
				Level:     notify.LevelWarning,
				Message:   "Agenda generation timed out – please try again.",
				MeetingID: id,
			})
			return
		}
	}
}

// attempt counts a tick if r is still the active poll for its record.
func (p *Poller) attempt(r *run) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[r.state.RecordID] != r {
		return 0, false
	}
	r.state.Attempts++
	return r.state.Attempts, true
}

// finish removes r from the registry. Only the caller that gets true may act
// on the outcome; a superseded or cancelled poll gets false.
func (p *Poller) finish(r *run, st Status) bool {
	p.mu.Lock()
	if p.active[r.state.RecordID] != r {
		p.mu.Unlock()
		return false
	}
	delete(p.active, r.state.RecordID)
	r.state.Status = st
	snapshot := r.state
	p.mu.Unlock()

	r.cancel()
	if err := snapshot.Err(); err != nil {
		p.logger.Warn("poll finished",
			slog.String("meeting_id", snapshot.RecordID),
			slog.String("status", string(st)),
			slog.String("error", err.Error()))
	} else {
		p.logger.Info("poll finished",
			slog.String("meeting_id", snapshot.RecordID),
			slog.String("status", string(st)),
			slog.Int("attempts", snapshot.Attempts))
	}
	if p.onFinish != nil {
		p.onFinish(snapshot)
	}
	return true
}

// Cancel stops the active poll for id, if any.
func (p *Poller) Cancel(id string) bool {
	p.mu.Lock()
	r, ok := p.active[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	return p.finish(r, StatusCancelled)
}

// State returns the active poll for id.
func (p *Poller) State(id string) (PollState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.active[id]
	if !ok {
		return PollState{}, false
	}
	return r.state, true
}

// Active returns the number of records being polled.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Close cancels every poll and waits for their goroutines to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.stop()
	for id, r := range p.active {
		r.cancel()
		delete(p.active, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
