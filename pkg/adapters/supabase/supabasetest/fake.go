// Package supabasetest provides an in-memory supabase.Backend for tests.
package supabasetest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/core"
)

// Backend keeps rows in memory and records calls.
type Backend struct {
	mu       sync.Mutex
	rows     map[string]supabase.Record
	files    map[string][]byte
	handlers map[int]func(supabase.Record)
	nextSub  int

	Selects     []supabase.Query
	UpsertCalls int
	Upserted    []supabase.Record
	// Fail, when set, is returned by every data call.
	Fail    error
	Session supabase.Session
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		rows:     make(map[string]supabase.Record),
		files:    make(map[string][]byte),
		handlers: make(map[int]func(supabase.Record)),
		Session:  supabase.Session{UserID: "user-1", AccessToken: "token", RefreshToken: "refresh"},
	}
}

// Put stores a row directly, without notifying subscribers.
func (b *Backend) Put(r supabase.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[r.ID] = r
}

// Get returns a stored row.
func (b *Backend) Get(id string) (supabase.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rows[id]
	return r, ok
}

// Rows returns every stored row ordered by id.
func (b *Backend) Rows() []supabase.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]supabase.Record, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutFile stores an object for Download.
func (b *Backend) PutFile(bucket, path string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[bucket+"/"+path] = data
}

// Emit delivers r to every subscriber, as a realtime change would.
func (b *Backend) Emit(r supabase.Record) {
	b.mu.Lock()
	b.rows[r.ID] = r
	hs := make([]func(supabase.Record), 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(r)
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Backend) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (supabase.Session, error) {
	if password == "" {
		return supabase.Session{}, errors.New("invalid login credentials")
	}
	s := b.Session
	s.Email = email
	return s, nil
}

func (b *Backend) Refresh(ctx context.Context, refreshToken string) (supabase.Session, error) {
	if refreshToken != b.Session.RefreshToken {
		return supabase.Session{}, errors.New("invalid refresh token")
	}
	return b.Session, nil
}

func (b *Backend) SignOut(ctx context.Context) error { return nil }

func (b *Backend) Select(ctx context.Context, q supabase.Query) ([]supabase.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Selects = append(b.Selects, q)
	if b.Fail != nil {
		return nil, b.Fail
	}
	ids := map[string]bool{}
	for _, id := range q.IDs {
		ids[id] = true
	}
	var out []supabase.Record
	for _, r := range b.rows {
		if !contains(q.Partitions, r.Partition) {
			continue
		}
		if !q.IncludeDeleted && r.Deleted != nil && *r.Deleted {
			continue
		}
		if len(ids) > 0 && !ids[r.ID] {
			continue
		}
		if q.Title != "" && core.Deref(r.Title) != q.Title {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Backend) Upsert(ctx context.Context, records []supabase.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.UpsertCalls++
	if b.Fail != nil {
		return b.Fail
	}
	for _, r := range records {
		b.rows[r.ID] = r
		b.Upserted = append(b.Upserted, r)
	}
	return nil
}

func (b *Backend) Insert(ctx context.Context, r supabase.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return b.Fail
	}
	if _, ok := b.rows[r.ID]; ok {
		return errors.New("duplicate key")
	}
	b.rows[r.ID] = r
	return nil
}

func (b *Backend) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[bucket+"/"+path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (b *Backend) Subscribe(ctx context.Context, h func(supabase.Record)) (core.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail != nil {
		return nil, b.Fail
	}
	b.nextSub++
	id := b.nextSub
	b.handlers[id] = h
	return &subscription{b: b, id: id}, nil
}

type subscription struct {
	b  *Backend
	id int
}

func (s *subscription) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.handlers, s.id)
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

var _ supabase.Backend = (*Backend)(nil)
