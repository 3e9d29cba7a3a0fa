package view

import (
	"log/slog"
	"time"
)

// Option configures a Controller.
type Option func(*Controller)

// WithClickWindow sets the double-click window.
func WithClickWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithClock sets the time source used to mark today's cell.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}
