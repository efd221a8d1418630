package supabase

import (
	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	SignedIn   bool `json:"signed_in"`
	Partitions int  `json:"partitions"`
	Encryption bool `json:"encryption"`
	Subscribed bool `json:"subscribed"`
	Fetched    int  `json:"fetched"`
	Upserted   int  `json:"upserted"`
	Skipped    int  `json:"skipped"`
	Changes    int  `json:"changes"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.identity.Partitions()
	return StoreState{
		SignedIn:   len(p) > 0,
		Partitions: len(p),
		Encryption: s.codec.HasKey(),
		Subscribed: s.sub != nil,
		Fetched:    s.stats.fetched,
		Upserted:   s.stats.upserted,
		Skipped:    s.stats.skipped,
		Changes:    s.stats.changes,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "remote-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
