package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/crypto"
)

// DefaultIDBatchThreshold is the batch size from which UpdateNotes stops
// narrowing its re-fetch by id, keeping request URLs bounded.
const DefaultIDBatchThreshold = 100

// Identity is the signed-in tenant. Notes may live under either partition.
type Identity struct {
	UserID   string
	LegacyID string
}

// Partitions returns the non-empty partition keys.
func (i Identity) Partitions() []string {
	var out []string
	for _, p := range []string{i.UserID, i.LegacyID} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Config holds the configuration of the remote note store.
type Config struct {
	Identity         Identity
	EncryptionKey    string
	IDBatchThreshold int
	Logger           *slog.Logger
	Now              func() time.Time
}

// Store is the remote note store. It never caches rows beyond one call.
type Store struct {
	backend Backend
	config  Config
	logger  *slog.Logger

	mu       sync.Mutex
	identity Identity
	codec    *crypto.Codec
	sub      core.Subscription
	stats    storeStats
}

type storeStats struct {
	fetched  int
	upserted int
	skipped  int
	changes  int
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, config Config) *Store {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.IDBatchThreshold <= 0 {
		config.IDBatchThreshold = DefaultIDBatchThreshold
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{
		backend:  backend,
		config:   config,
		logger:   config.Logger,
		identity: config.Identity,
		codec:    crypto.New(config.EncryptionKey),
	}
}

// SetIdentity switches the tenant, e.g. after sign-in.
func (s *Store) SetIdentity(id Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// SetEncryptionKey replaces the passphrase.
func (s *Store) SetEncryptionKey(key string) {
	s.mu.Lock()
	s.codec = crypto.New(key)
	s.mu.Unlock()
}

func (s *Store) snapshot() (Identity, *crypto.Codec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.codec
}

// SignedIn reports whether a tenant identity is configured.
func (s *Store) SignedIn() bool {
	id, _ := s.snapshot()
	return len(id.Partitions()) > 0
}

func (s *Store) partitions() ([]string, *crypto.Codec, error) {
	id, codec := s.snapshot()
	p := id.Partitions()
	if len(p) == 0 {
		return nil, nil, core.ErrNotSignedIn
	}
	return p, codec, nil
}

func remoteErr(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, core.ErrRemote, err)
}

// GetAllNotes returns the tenant's live notes, decrypted. Notes that fail to
// decrypt are left out and reported in the returned error alongside the
// notes that succeeded.
func (s *Store) GetAllNotes(ctx context.Context, f core.Filter) ([]core.Note, error) {
	partitions, codec, err := s.partitions()
	if err != nil {
		return nil, err
	}
	records, err := s.backend.Select(ctx, Query{Partitions: partitions})
	if err != nil {
		return nil, remoteErr("failed to get notes from the remote store, check your credentials", err)
	}

	notes := make([]core.Note, 0, len(records))
	var errs []error
	for _, r := range records {
		n, err := codec.DecryptNote(r.Note())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f.Text != "" && !strings.Contains(n.GetTitle(), f.Text) && !strings.Contains(n.GetContent(), f.Text) {
			continue
		}
		notes = append(notes, n)
	}

	s.mu.Lock()
	s.stats.fetched += len(records)
	s.mu.Unlock()
	return notes, errors.Join(errs...)
}

// UpdateNotes merges notes into their existing remote rows. Notes without a
// remote row, and notes whose merge would change nothing, are dropped.
func (s *Store) UpdateNotes(ctx context.Context, notes []core.Note) error {
	if len(notes) == 0 {
		return nil
	}
	partitions, codec, err := s.partitions()
	if err != nil {
		return err
	}

	q := Query{Partitions: partitions}
	if len(notes) < s.config.IDBatchThreshold {
		q.IDs = uniqueIDs(notes)
	}
	records, err := s.backend.Select(ctx, q)
	if err != nil {
		return remoteErr("failed to update notes in the remote store", err)
	}
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	now := s.config.Now().UTC().Format(time.RFC3339Nano)
	var merged []Record
	var errs []error
	skipped := 0
	for _, n := range notes {
		r, ok := byID[n.ID]
		if !ok {
			s.logger.Debug("no remote note to update", "id", n.ID)
			skipped++
			continue
		}
		remote, err := codec.DecryptNote(r.Note())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !Differs(remote, n) {
			s.logger.Debug("remote note unchanged, skipping", "id", n.ID)
			skipped++
			continue
		}
		rec, err := mergeRecord(r, remote, n, now, codec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		merged = append(merged, rec)
		byID[n.ID] = rec
	}

	if len(merged) > 0 {
		if err := s.backend.Upsert(ctx, merged); err != nil {
			errs = append(errs, remoteErr("failed to update notes in the remote store", err))
		} else {
			s.logger.Debug("updated remote notes", "count", len(merged))
		}
	}

	s.mu.Lock()
	s.stats.upserted += len(merged)
	s.stats.skipped += skipped
	s.mu.Unlock()
	return errors.Join(errs...)
}

func uniqueIDs(notes []core.Note) []string {
	seen := make(map[string]bool, len(notes))
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		if !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Differs reports whether merging incoming onto remote would change it. Only
// fields incoming carries count, and an empty incoming text never replaces a
// remote value.
func Differs(remote, incoming core.Note) bool {
	changes := func(in, cur *string) bool {
		return in != nil && *in != "" && *in != core.Deref(cur)
	}
	if changes(incoming.Title, remote.Title) || changes(incoming.Content, remote.Content) || changes(incoming.Source, remote.Source) {
		return true
	}
	return incoming.IsDeleted() && !remote.IsDeleted()
}

// Merge overlays incoming onto the decrypted remote note.
func Merge(remote, incoming core.Note, now string) core.Note {
	pick := func(in, cur *string) *string {
		if in != nil && *in != "" {
			return core.String(*in)
		}
		return cur
	}
	out := remote
	out.Title = pick(incoming.Title, remote.Title)
	out.Content = pick(incoming.Content, remote.Content)
	out.Source = pick(incoming.Source, remote.Source)
	out.Deleted = core.Bool(incoming.IsDeleted() || remote.IsDeleted())
	out.ModifiedAt = core.String(now)
	return out
}

func mergeRecord(base Record, remote, incoming core.Note, now string, codec *crypto.Codec) (Record, error) {
	m := Merge(remote, incoming, now)
	if base.Encrypted != nil && *base.Encrypted {
		enc, err := codec.EncryptNote(m)
		if err != nil {
			return Record{}, err
		}
		m = enc
	}
	out := base
	out.Title = m.Title
	out.Content = m.Content
	out.Source = m.Source
	out.Deleted = m.Deleted
	out.ModifiedAt = m.ModifiedAt
	return out, nil
}

// CreateEmptyNote inserts a blank note owned by the signed-in tenant.
func (s *Store) CreateEmptyNote(ctx context.Context) (core.Note, error) {
	id, _ := s.snapshot()
	partition := id.UserID
	if partition == "" {
		partition = id.LegacyID
	}
	if partition == "" {
		return core.Note{}, core.ErrNotSignedIn
	}

	now := s.config.Now().UTC().Format(time.RFC3339Nano)
	r := Record{
		ID:         uuid.NewString(),
		Title:      core.String(""),
		Content:    core.String(""),
		Source:     core.String(""),
		CreatedAt:  core.String(now),
		ModifiedAt: core.String(now),
		Deleted:    core.Bool(false),
		Shared:     core.Bool(false),
		Encrypted:  core.Bool(false),
		Partition:  partition,
	}
	if err := s.backend.Insert(ctx, r); err != nil {
		return core.Note{}, remoteErr("failed to create note in the remote store", err)
	}
	return r.Note(), nil
}

// GetNoteByTitle finds a live note by exact title. Encrypted titles cannot be
// matched by the server, so a miss falls back to decrypting every note.
func (s *Store) GetNoteByTitle(ctx context.Context, title string) (core.Note, error) {
	partitions, codec, err := s.partitions()
	if err != nil {
		return core.Note{}, err
	}
	records, err := s.backend.Select(ctx, Query{Partitions: partitions, Title: title})
	if err != nil {
		return core.Note{}, remoteErr("failed to get note from the remote store", err)
	}
	for _, r := range records {
		if r.Encrypted == nil || !*r.Encrypted {
			return r.Note(), nil
		}
	}
	if !codec.HasKey() {
		return core.Note{}, fmt.Errorf("note titled %q: %w", title, core.ErrNotFound)
	}

	all, err := s.GetAllNotes(ctx, core.Filter{})
	for _, n := range all {
		if n.GetTitle() == title {
			return n, nil
		}
	}
	if err != nil && !errors.Is(err, core.ErrWrongKey) {
		return core.Note{}, err
	}
	return core.Note{}, fmt.Errorf("note titled %q: %w", title, core.ErrNotFound)
}

// OnNoteChange streams changes to the tenant's notes, decrypted. A new
// registration replaces the previous one.
func (s *Store) OnNoteChange(ctx context.Context, h core.NoteHandler) (core.Subscription, error) {
	if err := s.RemoveAllChannels(); err != nil {
		return nil, err
	}
	if _, _, err := s.partitions(); err != nil {
		return nil, err
	}

	sub, err := s.backend.Subscribe(ctx, func(r Record) {
		id, codec := s.snapshot()
		if !containsPartition(id.Partitions(), r.Partition) {
			return
		}
		n, err := codec.DecryptNote(r.Note())
		if err != nil {
			s.logger.Error("failed to decrypt changed note", "id", r.ID, "error", err)
			return
		}
		s.mu.Lock()
		s.stats.changes++
		s.mu.Unlock()
		h(ctx, n)
	})
	if err != nil {
		return nil, remoteErr("failed to subscribe to note changes", err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return sub, nil
}

func containsPartition(partitions []string, p string) bool {
	for _, x := range partitions {
		if x == p {
			return true
		}
	}
	return false
}

// RemoveAllChannels tears down the active change feed.
func (s *Store) RemoveAllChannels() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

var _ core.RemoteStore = (*Store)(nil)
