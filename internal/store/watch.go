package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period WatchExternal waits after the last
// file event before syncing.
const DefaultDebounce = 50 * time.Millisecond

// ExternalWatcher republishes commits made by other processes.
//
// It watches the directory holding the database, reacting to writes on the
// database file and its WAL. Bursts of events are debounced into one
// SyncExternal call.
type ExternalWatcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	names    map[string]bool
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// WatchExternal creates a watcher for the store's database file. The
// current end of the change log becomes the sync starting point, so
// callers that fetch should create the watcher first: commits after the
// starting point are delivered once Run starts, including those made
// before Run is called.
func (s *Store) WatchExternal(ctx context.Context, debounce time.Duration) (*ExternalWatcher, error) {
	if s.path == "" || s.path == ":memory:" {
		return nil, fmt.Errorf("watch external: store %q has no database file", s.path)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return nil, fmt.Errorf("watch external: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	// The watch is registered before the starting point is read, so every
	// commit above the watermark produces a file event.
	if _, err := s.SyncExternal(ctx); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch external: %w", err)
	}

	base := filepath.Base(abs)
	return &ExternalWatcher{
		store:    s,
		watcher:  fw,
		names:    map[string]bool{base: true, base + "-wal": true},
		debounce: debounce,
		stopCh:   make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is cancelled or Close is called.
func (w *ExternalWatcher) Run(ctx context.Context) error {
	logger := w.store.logger.With("watcher", "external")
	logger.Info("watching for external writes", "path", w.store.path)

	if _, err := w.store.SyncExternal(ctx); err != nil {
		logger.Warn("external sync failed", "error", err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := w.store.SyncExternal(ctx); err != nil {
				logger.Warn("external sync failed", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the watcher and releases resources.
// Safe to call multiple times.
func (w *ExternalWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}
