package docgen

import (
	"log/slog"
	"time"
)

// Option configures a Generator.
type Option func(g *Generator, queueSize *int)

// WithWorkers sets the number of concurrent render jobs.
func WithWorkers(n int) Option {
	return func(g *Generator, _ *int) { g.workers = n }
}

// WithQueueSize bounds the number of pending jobs.
func WithQueueSize(n int) Option {
	return func(_ *Generator, size *int) {
		if n > 0 {
			*size = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator, _ *int) { g.logger = l }
}

// WithEventCallback is called after every generated, failed, attached or
// detached document.
func WithEventCallback(cb EventCallback) Option {
	return func(g *Generator, _ *int) { g.onEvent = cb }
}

// WithClock sets the time source the sweep uses to compute today.
func WithClock(now func() time.Time) Option {
	return func(g *Generator, _ *int) { g.now = now }
}
