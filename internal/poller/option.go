package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/council/internal/models"
)

// Option is a functional option for configuring a Poller.
type Option func(*Poller)

// WithInterval sets the time between two status queries.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts sets the number of status queries before a poll times out.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithOnReady registers a hook that receives the refreshed record when its agenda is ready.
func WithOnReady(fn func(ctx context.Context, m *models.Meeting)) Option {
	return func(p *Poller) {
		p.onReady = fn
	}
}

// WithOnFinish registers a hook called once per poll that reaches a final state.
func WithOnFinish(fn func(st PollState)) Option {
	return func(p *Poller) {
		p.onFinish = fn
	}
}
