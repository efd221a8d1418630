package platform_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/internal/config"
	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/adapters/supabase/supabasetest"
	"github.com/aretw0/notesync/pkg/core"
)

func setupApp(t *testing.T) (*platform.App, *supabasetest.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	settings, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	settings.RootFolder = "Inbox"

	root := filepath.Join(dir, "vault")
	vault := fs.NewVault(fs.VaultConfig{Path: root})
	require.NoError(t, vault.Initialize(context.Background()))

	backend := supabasetest.New()
	app, err := platform.Open(settings, platform.WithBackend(backend), platform.WithFileStore(vault))
	require.NoError(t, err)
	return app, backend, root
}

func TestOpenRequiresRemoteConfig(t *testing.T) {
	settings, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	_, err = platform.Open(settings, platform.WithForceTemp(true))
	require.Error(t, err)
	assert.Equal(t, "remote store url and anon key are required", core.AsUserMessage(nil, err, "unexpected"))
}

func TestAppLifecycle(t *testing.T) {
	ctx := context.Background()
	app, backend, root := setupApp(t)

	t.Run("Sync Before Login", func(t *testing.T) {
		res := app.Sync(ctx)
		assert.ErrorIs(t, res.Err, core.ErrNotSignedIn)
	})

	t.Run("Login", func(t *testing.T) {
		assert.Error(t, app.Login(ctx, "me@example.com", ""))
		require.NoError(t, app.Login(ctx, "me@example.com", "secret"))
		assert.Equal(t, "user-1", app.Settings.Auth.UserID)
		assert.True(t, app.Remote.SignedIn())

		saved, err := config.Load(app.Settings.Path())
		require.NoError(t, err)
		assert.Equal(t, "user-1", saved.Auth.UserID)
		assert.Equal(t, "refresh", saved.Auth.RefreshToken)
	})

	t.Run("Sync Persists Marker", func(t *testing.T) {
		backend.Put(supabase.Record{
			ID: "n1", Title: core.String("Welcome"), Content: core.String("hello"),
			Deleted: core.Bool(false), Partition: "user-1",
		})
		res := app.Sync(ctx)
		require.NoError(t, res.Err)
		assert.True(t, res.OK)

		b, err := os.ReadFile(filepath.Join(root, "Inbox", "Welcome.md"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "hello")

		saved, err := config.Load(app.Settings.Path())
		require.NoError(t, err)
		assert.False(t, saved.LastSyncTime.IsZero())
	})

	t.Run("New Note", func(t *testing.T) {
		n, err := app.NewNote(ctx)
		require.NoError(t, err)
		_, ok := backend.Get(n.ID)
		assert.True(t, ok)
		_, ok = app.Local.Lookup(n.ID)
		assert.True(t, ok)
	})

	t.Run("Components", func(t *testing.T) {
		var types []string
		for _, c := range app.Components() {
			types = append(types, c.ComponentType())
			assert.NotNil(t, c.State())
		}
		assert.Equal(t, []string{"local-store", "remote-store", "syncer"}, types)
	})

	t.Run("Expired Session", func(t *testing.T) {
		app.Settings.Auth.RefreshToken = "stale"
		res := app.Sync(ctx)
		assert.Equal(t, "session expired, please sign in again", core.AsUserMessage(nil, res.Err, "unexpected"))
		app.Settings.Auth.RefreshToken = "refresh"
	})

	t.Run("Logout", func(t *testing.T) {
		require.NoError(t, app.Logout(ctx))
		assert.False(t, app.Settings.SignedIn())
		assert.False(t, app.Remote.SignedIn())
		require.NoError(t, app.Close())
	})
}

func TestOpenModeOverride(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	settings, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, settings.Set(config.KeyNoteTemplate, "---\nid: \"${id}\"\n---\nCUSTOM ${content}"))
	require.NoError(t, settings.Set(config.KeyRootFolder, "Inbox"))

	root := filepath.Join(dir, "vault")
	vault := fs.NewVault(fs.VaultConfig{Path: root})
	require.NoError(t, vault.Initialize(ctx))

	backend := supabasetest.New()
	app, err := platform.Open(settings,
		platform.WithBackend(backend),
		platform.WithFileStore(vault),
		platform.WithMode(core.ModeTwoWay),
	)
	require.NoError(t, err)
	defer app.Close()
	require.NoError(t, app.Login(ctx, "me@example.com", "secret"))

	backend.Put(supabase.Record{
		ID: "n1", Title: core.String("Remote"), Content: core.String("body"),
		Deleted: core.Bool(false), Partition: "user-1",
	})
	res := app.Sync(ctx)
	require.NoError(t, res.Err)
	assert.Equal(t, core.ModeTwoWay, app.Syncer.Mode())

	b, err := os.ReadFile(filepath.Join(root, "Inbox", "Remote.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "CUSTOM")
	assert.Contains(t, string(b), "body")

	saved, err := config.Load(settings.Path())
	require.NoError(t, err)
	assert.Equal(t, core.ModeOneWay, saved.SyncMode)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	platform.NewLogger(&buf, false, "").Debug("hidden")
	assert.Empty(t, buf.String())

	platform.NewLogger(&buf, true, "").Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), "shown")

	logFile := filepath.Join(t.TempDir(), "notesync.log")
	platform.NewLogger(&buf, false, logFile).Info("to file")
	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
}
