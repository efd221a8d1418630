package notesync

import (
	"context"
	"log/slog"

	"github.com/aretw0/notesync/internal/config"
	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/syncer"
)

// Version is the release version, set at build time with
// -ldflags "-X github.com/aretw0/notesync.Version=...".
var Version = "dev"

// --- Types ---

// App is an opened vault wired to its remote store.
type App = platform.App

// Result is the outcome of one sync run.
type Result = syncer.Result

// --- Configuration ---

// Option defines a functional option for Open.
type Option = platform.Option

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithBackend injects a remote backend instead of the configured project.
func WithBackend(b supabase.Backend) Option {
	return platform.WithBackend(b)
}

// WithFileStore injects the vault instead of the configured directory.
func WithFileStore(files core.FileStore) Option {
	return platform.WithFileStore(files)
}

// WithEvents reports sync activity on ch.
func WithEvents(ch chan<- syncer.Event) Option {
	return platform.WithEvents(ch)
}

// WithMode overrides the configured sync mode for this App only.
func WithMode(mode core.SyncMode) Option {
	return platform.WithMode(mode)
}

// WithForceTemp forces the use of a temporary vault directory.
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the dev sandbox used under `go run`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// --- Factory ---

// Open loads the settings at configPath and wires the app. An empty path
// uses the default settings location.
func Open(configPath string, opts ...Option) (*App, error) {
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return platform.Open(settings, opts...)
}

// --- Operations ---

// Sync opens the app and runs one sync pass.
func Sync(ctx context.Context, configPath string, opts ...Option) Result {
	app, err := Open(configPath, opts...)
	if err != nil {
		return Result{Err: err}
	}
	defer app.Close()
	return app.Sync(ctx)
}

// --- Safety & Utils ---

// ResolveVaultPath determines the actual path for the vault based on safety rules.
func ResolveVaultPath(userPath string, forceTemp bool) string {
	return platform.ResolveVaultPath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindVaultRoot looks upwards for a vault root (a .obsidian or .notesync dir).
func FindVaultRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
