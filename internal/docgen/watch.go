package docgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/council/internal/apperr"
	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Sync brings document references in line with the agenda directory:
//   - records pointing at a missing file are cleared
//   - files whose record has no reference are attached
//   - changed files refresh the stored checksum
func (g *Generator) Sync(ctx context.Context) error {
	files, err := g.files.List()
	if err != nil {
		return err
	}
	disk := make(map[string]string, len(files))
	for _, f := range files {
		disk[f.Name] = f.Checksum
	}

	withDoc := true
	attached, err := g.records.List(ctx, models.MeetingFilter{HasDocument: &withDoc}, models.OrderDateTime)
	if err != nil {
		return fmt.Errorf("docgen: sync list: %w", err)
	}

	referenced := make(map[string]struct{}, len(attached))
	for _, m := range attached {
		name := strings.TrimPrefix(m.DocumentURL, URLPrefix)
		referenced[name] = struct{}{}
		sum, ok := disk[name]
		switch {
		case !ok:
			if err := g.records.ClearDocument(ctx, m.ID); err != nil {
				g.logger.Warn("sync: clear failed", slog.String("meeting_id", m.ID), slog.String("error", err.Error()))
				continue
			}
			g.logger.Debug("sync: cleared missing agenda", slog.String("meeting_id", m.ID), slog.String("file", name))
			g.emit(EventDetached, m.ID, "")
		case sum != m.DocChecksum:
			if err := g.records.SetDocument(ctx, m.ID, m.DocumentURL, sum); err != nil {
				g.logger.Warn("sync: checksum update failed", slog.String("meeting_id", m.ID), slog.String("error", err.Error()))
			}
		}
	}

	for name, sum := range disk {
		if _, ok := referenced[name]; ok {
			continue
		}
		id, ok := MeetingID(name)
		if !ok {
			continue
		}
		m, err := g.records.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				g.logger.Warn("sync: load failed", slog.String("meeting_id", id), slog.String("error", err.Error()))
			}
			continue
		}
		if m.HasDocument() {
			continue
		}
		url := URLPrefix + name
		if err := g.records.SetDocument(ctx, id, url, sum); err != nil {
			g.logger.Warn("sync: attach failed", slog.String("meeting_id", id), slog.String("error", err.Error()))
			continue
		}
		g.logger.Debug("sync: attached agenda", slog.String("meeting_id", id), slog.String("file", name))
		g.emit(EventAttached, id, url)
	}
	return nil
}

// Watch watches the agenda directory and reconciles records after changes
// until ctx is cancelled. Bursts of events are debounced into one Sync.
func (g *Generator) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := g.files.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	g.logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reconcileDelay)
			timerCh = timer.C
		} else {
			timer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			g.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			if err := g.Sync(ctx); err != nil && ctx.Err() == nil {
				g.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !storage.IsAgendaFile(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				g.logger.Debug("watcher: change", slog.String("file", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			g.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
