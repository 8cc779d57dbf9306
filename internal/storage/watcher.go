package storage

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
)

const watchDebounce = 200 * time.Millisecond

// ChangeCallback receives a state document written by another process.
type ChangeCallback func(s *models.AppState)

// Watch observes the state file of fs and calls cb with documents written by
// someone other than p. It blocks until ctx is cancelled.
//
// The directory is watched rather than the file, since atomic writes replace
// the file and would drop a file-level watch. Bursts of events are coalesced.
func Watch(ctx context.Context, fs *FS, p *Persistence, logger *slog.Logger, cb ChangeCallback) error {
	target, err := fs.Path(StateKey)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(fs.Root()); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("path", target))

	var (
		reloadTimer *time.Timer
		reloadCh    <-chan time.Time
	)
	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(watchDebounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reloadCh:
			reloadExternal(fs, p, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reloadExternal(fs *FS, p *Persistence, logger *slog.Logger, cb ChangeCallback) {
	data, err := fs.Get(StateKey)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("watcher: read failed", slog.String("error", err.Error()))
		}
		return
	}
	if p.IsOwnWrite(data) {
		return
	}
	s, err := state.Decode(data)
	if err != nil || s == nil {
		logger.Warn("watcher: ignoring unreadable state file")
		return
	}
	p.mu.Lock()
	p.lastSum = Sum(data)
	p.mu.Unlock()

	logger.Debug("watcher: external change", slog.Time("last_updated", s.LastUpdated))
	cb(s)
}
