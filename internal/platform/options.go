package platform

import (
	"log/slog"

	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/syncer"
)

// options holds the internal configuration of an App.
type options struct {
	logger    *slog.Logger
	backend   supabase.Backend
	files     core.FileStore
	events    chan<- syncer.Event
	mode      core.SyncMode
	forceTemp bool
	devSafety bool
}

// Option configures Open.
type Option func(*options)

func defaultOptions() *options {
	return &options{devSafety: true}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend injects a remote backend (e.g. an in-memory fake) instead of
// connecting to the configured Supabase project.
func WithBackend(b supabase.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithFileStore injects the vault instead of opening the configured path.
func WithFileStore(files core.FileStore) Option {
	return func(o *options) {
		o.files = files
	}
}

// WithEvents reports sync activity on ch.
func WithEvents(ch chan<- syncer.Event) Option {
	return func(o *options) {
		o.events = ch
	}
}

// WithMode overrides the configured sync mode for this App without
// persisting it. The note template follows the overriding mode.
func WithMode(mode core.SyncMode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithForceTemp redirects the vault into a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithDevSafety controls the sandbox used under `go run`. By default
// (true) a dev build never touches the real vault.
//
// CAUTION: only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}
