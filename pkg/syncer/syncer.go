// Package syncer drives note synchronization between the local vault and the
// remote store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// Result is the outcome of one sync run.
type Result struct {
	OK     bool
	Err    error
	Pushed int
	Pulled int
}

// Syncer runs sync passes and mirrors realtime changes. At most one pass runs
// at a time.
type Syncer struct {
	local  core.LocalStore
	remote core.RemoteStore
	opts   *options
	logger *slog.Logger

	running sync.Mutex

	mu        sync.Mutex
	mode      core.SyncMode
	lastSync  time.Time
	localSub  core.Subscription
	remoteSub core.Subscription
	stats     stats
}

type stats struct {
	runs     int
	failures int
	pushed   int
	pulled   int
	mirrored int
	lastErr  string
}

// New creates a Syncer between local and remote.
func New(local core.LocalStore, remote core.RemoteStore, opts ...Option) *Syncer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Syncer{
		local:    local,
		remote:   remote,
		opts:     o,
		logger:   o.logger,
		mode:     o.mode,
		lastSync: o.lastSync,
	}
}

// Mode returns the active sync mode.
func (s *Syncer) Mode() core.SyncMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the sync mode. Realtime mirroring is not touched; call
// InitRealtime to apply the new mode to it.
func (s *Syncer) SetMode(m core.SyncMode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// LastSync returns the time of the last successful run.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *Syncer) advance(t time.Time) {
	s.mu.Lock()
	s.lastSync = t
	s.mu.Unlock()
	if s.opts.onLastSync != nil {
		if err := s.opts.onLastSync(t); err != nil {
			s.logger.Error("failed to persist last sync time", "error", err)
		}
	}
}

// Sync runs one full pass for the active mode. It never panics and never
// returns an error outside of Result.
func (s *Syncer) Sync(ctx context.Context) (res Result) {
	if !s.running.TryLock() {
		return Result{Err: core.ErrSyncInProgress}
	}
	defer s.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync panic", "panic", r, "stack", string(debug.Stack()))
			res = Result{Err: fmt.Errorf("sync panic: %v", r)}
		}
		s.record(res)
		s.emit(Event{Kind: EventSyncFinished, Err: res.Err})
	}()

	if !s.remote.SignedIn() {
		return Result{Err: core.ErrNotSignedIn}
	}

	mode := s.Mode()
	s.logger.Info("sync started", "mode", mode)
	s.emit(Event{Kind: EventSyncStarted})

	var errs []error
	hardFailure := false

	// Notes whose push failed keep their local edits through the pull.
	var unpushed map[string]bool
	if mode.PushesLocal() {
		pending, err := s.push(ctx)
		if err != nil {
			s.logger.Error("push failed", "error", err)
			errs = append(errs, err)
			hardFailure = true
			unpushed = make(map[string]bool, len(pending))
			for _, n := range pending {
				unpushed[n.ID] = true
			}
		} else {
			res.Pushed = len(pending)
		}
	}

	n, hard, err := s.pull(ctx, mode, unpushed)
	res.Pulled = n
	if err != nil {
		if hard {
			s.logger.Error("pull failed", "error", err)
			hardFailure = true
		} else {
			s.logger.Warn("pull finished with errors", "error", err)
		}
		errs = append(errs, err)
	}

	if s.opts.syncLinks && !hardFailure {
		if err := s.SyncLinks(ctx); err != nil {
			s.logger.Error("links sync failed", "error", err)
			errs = append(errs, err)
		}
	}

	if !hardFailure {
		s.advance(s.opts.now())
	}

	res.Err = errors.Join(errs...)
	res.OK = res.Err == nil
	s.logger.Info("sync finished", "mode", mode, "ok", res.OK, "pushed", res.Pushed, "pulled", res.Pulled)
	return res
}

func (s *Syncer) record(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.runs++
	s.stats.pushed += res.Pushed
	s.stats.pulled += res.Pulled
	if res.Err != nil {
		s.stats.failures++
		s.stats.lastErr = res.Err.Error()
	} else {
		s.stats.lastErr = ""
	}
}

// push sends local notes changed since the last run and returns them.
func (s *Syncer) push(ctx context.Context) ([]core.Note, error) {
	notes, err := s.local.ModifiedSince(ctx, s.LastSync())
	if err != nil {
		return nil, fmt.Errorf("failed to collect local changes: %w", err)
	}
	if len(notes) == 0 {
		return nil, nil
	}
	if err := s.remote.UpdateNotes(ctx, notes); err != nil {
		return notes, fmt.Errorf("failed to push local changes: %w", err)
	}
	s.logger.Debug("pushed local changes", "count", len(notes))
	return notes, nil
}

// pull materializes remote notes locally. hard reports a failure that
// leaves the pass incomplete, as opposed to single notes that could not be
// decrypted or written.
func (s *Syncer) pull(ctx context.Context, mode core.SyncMode, skip map[string]bool) (n int, hard bool, err error) {
	notes, err := s.remote.GetAllNotes(ctx, s.opts.filter)
	var errs []error
	if err != nil {
		if errors.Is(err, core.ErrRemote) || errors.Is(err, core.ErrNotSignedIn) {
			return 0, true, fmt.Errorf("failed to pull remote notes: %w", err)
		}
		errs = append(errs, err)
	}

	live := make([]core.Note, 0, len(notes))
	for _, note := range notes {
		if note.IsDeleted() || s.isLinksNote(note) || skip[note.ID] {
			continue
		}
		live = append(live, note)
	}

	if mode != core.ModeOneWayDelete {
		if err := s.local.UpsertNotes(ctx, live, false); err != nil {
			errs = append(errs, err)
		}
		return len(live), false, errors.Join(errs...)
	}

	// The remote store is an inbox here: only notes that made it to disk
	// are tombstoned.
	var consumed []core.Note
	for _, note := range live {
		if err := s.local.UpsertNotes(ctx, []core.Note{note}, true); err != nil {
			errs = append(errs, err)
			continue
		}
		consumed = append(consumed, core.Tombstone(note.ID))
	}
	if len(consumed) > 0 {
		if err := s.remote.UpdateNotes(ctx, consumed); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete consumed notes: %w", err))
			return len(consumed), true, errors.Join(errs...)
		}
	}
	return len(consumed), false, errors.Join(errs...)
}

func (s *Syncer) isLinksNote(n core.Note) bool {
	return s.opts.linksTitle != "" && n.GetTitle() == s.opts.linksTitle
}

// SyncLinks overwrites the remote links note with every link target found
// in the vault, creating the note when it does not exist.
func (s *Syncer) SyncLinks(ctx context.Context) error {
	links, err := s.local.CollectLinks(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect links: %w", err)
	}

	note, err := s.remote.GetNoteByTitle(ctx, s.opts.linksTitle)
	if errors.Is(err, core.ErrNotFound) {
		note, err = s.remote.CreateEmptyNote(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to find links note: %w", err)
	}

	return s.remote.UpdateNotes(ctx, []core.Note{{
		ID:      note.ID,
		Title:   core.String(s.opts.linksTitle),
		Content: core.String(LinksContent(links)),
	}})
}

// LinksContent renders link targets as sorted wikilinks, one per line.
func LinksContent(links []string) string {
	sorted := append([]string(nil), links...)
	sort.Strings(sorted)
	var b strings.Builder
	for i, l := range sorted {
		if i > 0 && sorted[i-1] == l {
			continue
		}
		b.WriteString("[[")
		b.WriteString(l)
		b.WriteString("]]\n")
	}
	return b.String()
}
