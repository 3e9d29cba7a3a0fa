package docgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/storage"
)

// Event kinds passed to an EventCallback.
const (
	EventGenerated = "generated"
	EventFailed    = "failed"
	EventAttached  = "attached"
	EventDetached  = "detached"
)

// EventCallback is called after a document change on a meeting record.
type EventCallback func(kind, meetingID, url string)

// Records is the part of the meeting repository the generator needs.
type Records interface {
	List(ctx context.Context, f models.MeetingFilter, order models.Order) ([]models.Meeting, error)
	Get(ctx context.Context, id string) (*models.Meeting, error)
	SetDocument(ctx context.Context, id, url, checksum string) error
	ClearDocument(ctx context.Context, id string) error
}

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
)

// Generator runs agenda generation jobs on a small worker pool.
//
// A job renders the agenda HTML, prints it to PDF, stores Agenda-<id>.pdf and
// records the file URL on the meeting. Requests for an id that is already
// queued are merged; a request that arrives while the job runs queues it again.
type Generator struct {
	records  Records
	files    storage.Provider
	agenda   *Agenda
	renderer Renderer
	workers  int
	logger   *slog.Logger
	onEvent  EventCallback
	now      func() time.Time

	queue  chan string
	mu     sync.Mutex
	queued map[string]struct{}
}

// NewGenerator creates a Generator. Call Run to start processing.
func NewGenerator(records Records, files storage.Provider, renderer Renderer, opts ...Option) (*Generator, error) {
	agenda, err := NewAgenda()
	if err != nil {
		return nil, err
	}
	g := &Generator{
		records:  records,
		files:    files,
		agenda:   agenda,
		renderer: renderer,
		workers:  defaultWorkers,
		logger:   slog.Default(),
		now:      time.Now,
		queued:   map[string]struct{}{},
	}
	queueSize := defaultQueueSize
	for _, opt := range opts {
		opt(g, &queueSize)
	}
	if g.workers < 1 {
		g.workers = 1
	}
	g.queue = make(chan string, queueSize)
	return g, nil
}

// RequestDocumentGeneration queues a job for id and returns immediately.
func (g *Generator) RequestDocumentGeneration(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.queued[id]; ok {
		return nil
	}
	select {
	case g.queue <- id:
		g.queued[id] = struct{}{}
		g.logger.Debug("docgen: queued", slog.String("meeting_id", id))
		return nil
	default:
		return apperr.Transient(errors.New("docgen: generation queue full"))
	}
}

// Pending returns the number of queued jobs.
func (g *Generator) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queued)
}

// Run processes queued jobs until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.Info("docgen: workers started", slog.Int("workers", g.workers))
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < g.workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-g.queue:
					g.mu.Lock()
					delete(g.queued, id)
					g.mu.Unlock()
					if err := g.Generate(ctx, id); err != nil && ctx.Err() == nil {
						g.logger.Warn("docgen: job failed",
							slog.String("meeting_id", id),
							slog.String("error", err.Error()))
					}
				}
			}
		})
	}
	err := eg.Wait()
	g.logger.Info("docgen: workers stopped")
	return err
}

// Generate renders and attaches the agenda for id synchronously.
func (g *Generator) Generate(ctx context.Context, id string) error {
	m, err := g.records.Get(ctx, id)
	if err != nil {
		// A record deleted while queued needs no document.
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("docgen: load %s: %w", id, err)
		}
		return g.fail(id, fmt.Errorf("docgen: load %s: %w", id, err))
	}

	html, err := g.agenda.Render(m)
	if err != nil {
		return g.fail(id, err)
	}
	pdf, err := g.renderer.RenderPDF(ctx, html)
	if err != nil {
		return g.fail(id, fmt.Errorf("docgen: render pdf %s: %w", id, err))
	}

	name := FileName(id)
	if err := g.files.Write(name, pdf); err != nil {
		return g.fail(id, err)
	}
	url := FileURL(id)
	if err := g.records.SetDocument(ctx, id, url, storage.Checksum(pdf)); err != nil {
		return g.fail(id, fmt.Errorf("docgen: attach %s: %w", id, err))
	}

	g.logger.Info("docgen: agenda generated",
		slog.String("meeting_id", id),
		slog.String("file", name),
		slog.Int("bytes", len(pdf)))
	g.emit(EventGenerated, id, url)
	return nil
}

func (g *Generator) fail(id string, err error) error {
	g.logger.Error("docgen: agenda generation failed",
		slog.String("meeting_id", id),
		slog.String("error", err.Error()))
	g.emit(EventFailed, id, "")
	return err
}

func (g *Generator) emit(kind, id, url string) {
	if g.onEvent != nil {
		g.onEvent(kind, id, url)
	}
}
