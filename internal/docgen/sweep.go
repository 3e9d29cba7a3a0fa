package docgen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/starford/council/internal/calendar"
	"github.com/starford/council/internal/models"
)

// Sweep queues generation for every upcoming meeting that has no agenda yet.
// It returns the number of jobs requested.
func (g *Generator) Sweep(ctx context.Context) (int, error) {
	noDoc := false
	today := g.now().Format(calendar.DateLayout)
	meetings, err := g.records.List(ctx, models.MeetingFilter{From: today, HasDocument: &noDoc}, models.OrderDateTime)
	if err != nil {
		return 0, fmt.Errorf("docgen: sweep list: %w", err)
	}
	n := 0
	for _, m := range meetings {
		if m.DocStatus == models.DocStatusCancelled {
			continue
		}
		if err := g.RequestDocumentGeneration(ctx, m.ID); err != nil {
			return n, fmt.Errorf("docgen: sweep request %s: %w", m.ID, err)
		}
		n++
	}
	return n, nil
}

// Schedule runs Sweep on the given cron spec until ctx is cancelled.
func (g *Generator) Schedule(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		n, err := g.Sweep(ctx)
		if err != nil {
			g.logger.Warn("docgen: sweep failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			g.logger.Info("docgen: sweep queued agendas", slog.Int("count", n))
		}
	}); err != nil {
		return fmt.Errorf("docgen: invalid sweep schedule %q: %w", spec, err)
	}

	c.Start()
	g.logger.Info("docgen: sweep scheduled", slog.String("schedule", spec))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
