package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Folder            string     `json:"folder"`
	AttachmentsFolder string     `json:"attachments_folder,omitempty"`
	IndexedNotes      int        `json:"indexed_notes"`
	Writes            int        `json:"writes"`
	Watching          bool       `json:"watching"`
	LastScan          *time.Time `json:"last_scan,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := StoreState{
		Folder:            s.config.Folder,
		AttachmentsFolder: s.config.AttachmentsFolder,
		IndexedNotes:      len(s.index),
		Writes:            s.writes,
		Watching:          s.sub != nil,
	}
	if !s.lastScan.IsZero() {
		t := s.lastScan
		st.LastScan = &t
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "local-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
