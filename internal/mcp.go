package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/council/internal/mcpserver"
)

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr since
// stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(app.config, os.Stderr)

	c, err := openCore(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.db.Close()

	// Agendas queued by create_meeting are rendered while the session lasts.
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.gen.Run(genCtx); err != nil {
			logger.Warn("docgen stopped", slog.String("error", err.Error()))
		}
	}()

	srv := mcpserver.New(c.service(nil), c.gen, c.loc)
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
