package store

import (
	"context"
	"fmt"
)

// publishLocal announces a change committed through this Store.
func (s *Store) publishLocal(c Change) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.tracking {
		if c.Seq <= s.watermark {
			// SyncExternal already read and published it.
			return
		}
		s.local[c.Seq] = true
	}
	s.publish(c)
}

// SyncExternal publishes changes committed by other connections since the
// last sync. Changes this Store published itself are skipped. Returns the
// number of changes published. Cached entity schemas are reloaded on next
// use.
//
// The first call only records the current end of the log; changes made
// before any sync started are not replayed.
func (s *Store) SyncExternal(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if !s.tracking {
		seq, err := s.LastSeq(ctx)
		if err != nil {
			return 0, err
		}
		s.watermark = seq
		s.tracking = true
		return 0, nil
	}

	// Another connection may have re-registered an entity kind.
	s.forgetSchemas()

	changes, err := s.ChangesSince(ctx, s.watermark)
	if err != nil {
		return 0, fmt.Errorf("sync external: %w", err)
	}
	published := 0
	for _, c := range changes {
		s.watermark = c.Seq
		if s.local[c.Seq] {
			delete(s.local, c.Seq)
			continue
		}
		s.publish(c)
		published++
	}
	if published > 0 {
		s.logger.Debug("external changes published", "count", published, "watermark", s.watermark)
	}
	return published, nil
}

// publish enqueues c on every attached context.
func (s *Store) publish(c Change) {
	s.mu.Lock()
	targets := make([]*Context, 0, len(s.contexts))
	for _, ctx := range s.contexts {
		targets = append(targets, ctx)
	}
	s.mu.Unlock()

	for _, ctx := range targets {
		ctx.queue.Enqueue(c)
	}
}
