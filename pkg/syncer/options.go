package syncer

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// DefaultLinksTitle is the title of the remote note that aggregates vault links.
const DefaultLinksTitle = "Links from Obsidian"

type options struct {
	mode       core.SyncMode
	lastSync   time.Time
	onLastSync func(time.Time) error
	syncLinks  bool
	linksTitle string
	filter     core.Filter
	logger     *slog.Logger
	now        func() time.Time
	events     chan<- Event
}

// Option configures a Syncer.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		mode:       core.ModeOneWay,
		linksTitle: DefaultLinksTitle,
		now:        time.Now,
	}
}

// WithMode sets the sync mode. Defaults to one-way.
func WithMode(m core.SyncMode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithLastSync seeds the last successful sync time.
func WithLastSync(t time.Time) Option {
	return func(o *options) {
		o.lastSync = t
	}
}

// WithLastSyncHook is called whenever the last sync time advances, usually to
// persist it.
func WithLastSyncHook(fn func(time.Time) error) Option {
	return func(o *options) {
		o.onLastSync = fn
	}
}

// WithSyncLinks pushes the vault's links to the remote links note on every run.
func WithSyncLinks(enabled bool) Option {
	return func(o *options) {
		o.syncLinks = enabled
	}
}

// WithLinksTitle overrides DefaultLinksTitle.
func WithLinksTitle(title string) Option {
	return func(o *options) {
		if title != "" {
			o.linksTitle = title
		}
	}
}

// WithFilter narrows the remote notes pulled on each run.
func WithFilter(f core.Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithLogger sets the logger for the syncer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithEvents reports sync activity on ch. Sends never block; events are
// dropped when ch is full.
func WithEvents(ch chan<- Event) Option {
	return func(o *options) {
		o.events = ch
	}
}
