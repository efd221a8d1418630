package syncer

import (
	"time"

	"github.com/aretw0/introspection"
)

// SyncerState exposes internal state for observability.
type SyncerState struct {
	Mode      string     `json:"mode"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	Realtime  bool       `json:"realtime"`
	Runs      int        `json:"runs"`
	Failures  int        `json:"failures"`
	Pushed    int        `json:"pushed"`
	Pulled    int        `json:"pulled"`
	Mirrored  int        `json:"mirrored"`
	LastError string     `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Syncer) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SyncerState{
		Mode:      string(s.mode),
		Realtime:  s.remoteSub != nil,
		Runs:      s.stats.runs,
		Failures:  s.stats.failures,
		Pushed:    s.stats.pushed,
		Pulled:    s.stats.pulled,
		Mirrored:  s.stats.mirrored,
		LastError: s.stats.lastErr,
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		st.LastSync = &t
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Syncer) ComponentType() string {
	return "syncer"
}

var _ introspection.Introspectable = (*Syncer)(nil)
var _ introspection.Component = (*Syncer)(nil)
