package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/notesync/pkg/core"
)

// InitRealtime (re)registers change mirroring for the active mode. Remote
// changes are always mirrored locally; realtime-two-way also mirrors local
// edits and deletions to the remote store. Non-realtime modes only tear
// down existing mirroring.
func (s *Syncer) InitRealtime(ctx context.Context) error {
	if err := s.StopRealtime(); err != nil {
		s.logger.Warn("failed to stop previous realtime mirroring", "error", err)
	}

	mode := s.Mode()
	if !mode.Realtime() {
		return nil
	}
	if !s.remote.SignedIn() {
		return core.ErrNotSignedIn
	}

	remoteSub, err := s.remote.OnNoteChange(ctx, s.applyRemote)
	if err != nil {
		return fmt.Errorf("failed to watch remote notes: %w", err)
	}

	var localSub core.Subscription
	if mode.PushesLocal() {
		localSub, err = s.local.OnNoteChange(ctx, s.applyLocal, true)
		if err != nil {
			_ = remoteSub.Close()
			return fmt.Errorf("failed to watch local notes: %w", err)
		}
	}

	s.mu.Lock()
	s.remoteSub = remoteSub
	s.localSub = localSub
	s.mu.Unlock()
	s.logger.Info("realtime mirroring started", "mode", mode)
	return nil
}

// StopRealtime tears down change mirroring.
func (s *Syncer) StopRealtime() error {
	s.mu.Lock()
	remoteSub, localSub := s.remoteSub, s.localSub
	s.remoteSub, s.localSub = nil, nil
	s.mu.Unlock()

	var errs []error
	if remoteSub != nil {
		errs = append(errs, remoteSub.Close())
	}
	if localSub != nil {
		errs = append(errs, localSub.Close())
	}
	return errors.Join(errs...)
}

func (s *Syncer) applyRemote(ctx context.Context, n core.Note) {
	if s.isLinksNote(n) {
		return
	}
	var err error
	if n.IsDeleted() {
		err = s.local.DeleteNotes(ctx, []core.Note{n})
	} else {
		err = s.local.UpsertNotes(ctx, []core.Note{n}, false)
	}
	if err != nil {
		s.logger.Error("failed to apply remote change", "id", n.ID, "error", err)
	} else {
		s.logger.Debug("applied remote change", "id", n.ID, "deleted", n.IsDeleted())
		s.countMirrored()
	}
	s.emit(Event{Kind: EventRemoteChange, ID: n.ID, Deleted: n.IsDeleted(), Err: err})
}

func (s *Syncer) applyLocal(ctx context.Context, n core.Note) {
	err := s.remote.UpdateNotes(ctx, []core.Note{n})
	if err != nil {
		s.logger.Error("failed to push local change", "id", n.ID, "error", err)
	} else {
		s.logger.Debug("pushed local change", "id", n.ID, "deleted", n.IsDeleted())
		s.countMirrored()
	}
	s.emit(Event{Kind: EventLocalChange, ID: n.ID, Deleted: n.IsDeleted(), Err: err})
}

func (s *Syncer) countMirrored() {
	s.mu.Lock()
	s.stats.mirrored++
	s.mu.Unlock()
}
