package fs

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/core"
)

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// OnNoteChange watches the vault and calls h for every changed in-scope note.
// Deletions are reported as tombstones when includeDeletes is set, matched to
// a note by the path recorded in the index. A new registration replaces the
// previous one.
func (s *Store) OnNoteChange(ctx context.Context, h core.NoteHandler, includeDeletes bool) (core.Subscription, error) {
	if err := s.OffNoteChange(); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	events, err := s.files.Watch(subCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch vault: %w", err)
	}
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer close(sub.done)
		for ev := range events {
			if !s.InScope(ev.Path) {
				continue
			}
			s.handleEvent(ctx, ev, h, includeDeletes)
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("note change handler failed", "error", err)
	}))

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return sub, nil
}

// OffNoteChange stops the active subscription, if any.
func (s *Store) OffNoteChange() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (s *Store) handleEvent(ctx context.Context, ev core.FileEvent, h core.NoteHandler, includeDeletes bool) {
	if ev.Op == core.FileDeleted {
		if !includeDeletes {
			return
		}
		id, ok := s.idByPath(ev.Path)
		if !ok {
			return
		}
		// A rename or rewrite may have re-created the file before delivery.
		if exists, err := s.files.Exists(ctx, ev.Path); err == nil && exists {
			return
		}
		s.unbind(id)
		s.logger.Debug("local note deleted", "path", ev.Path, "id", id)
		h(ctx, core.Tombstone(id))
		return
	}

	info, err := s.files.Stat(ctx, ev.Path)
	if err != nil {
		return
	}
	n, err := s.readNote(ctx, info)
	if err != nil {
		s.logger.Warn("skipping unreadable note", "path", ev.Path, "error", err)
		return
	}
	if n.ID() == "" {
		return
	}
	s.bind(n)
	s.logger.Debug("local note changed", "path", ev.Path, "id", n.ID())
	h(ctx, n.ToNote())
}
