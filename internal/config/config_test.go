package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/internal/config"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/template"
)

func TestLoadDefaults(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "FleetingNotesApp", s.RootFolder)
	assert.Equal(t, core.ModeOneWay, s.SyncMode)
	assert.Equal(t, template.DefaultNoteTemplate, s.NoteTemplate)
	assert.Equal(t, "${title}", s.TitleTemplate)
	assert.Equal(t, "YYYY-MM-DD", s.DateFormat)
	assert.Equal(t, "Links from Obsidian", s.LinksNoteTitle)
	assert.True(t, s.AutoGenerateTitle)
	assert.Equal(t, 100, s.IDBatchThreshold)
	assert.Zero(t, s.SyncInterval)
	assert.True(t, s.LastSyncTime.IsZero())
	assert.False(t, s.SignedIn())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	s, err := config.Load(path)
	require.NoError(t, err)

	last := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	s.RootFolder = "Inbox"
	s.SyncMode = core.ModeTwoWay
	s.SyncInterval = 15 * time.Minute
	s.LastSyncTime = last
	s.Auth = config.Auth{Email: "me@example.com", UserID: "u1", RefreshToken: "r1"}
	s.Supabase = config.Supabase{URL: "https://proj.supabase.co", AnonKey: "anon"}
	require.NoError(t, s.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Inbox", got.RootFolder)
	assert.Equal(t, core.ModeTwoWay, got.SyncMode)
	assert.Equal(t, 15*time.Minute, got.SyncInterval)
	assert.True(t, last.Equal(got.LastSyncTime))
	assert.Equal(t, "u1", got.Auth.UserID)
	assert.Equal(t, "r1", got.Auth.RefreshToken)
	assert.Equal(t, "https://proj.supabase.co", got.Supabase.URL)
	assert.True(t, got.SignedIn())

	t.Run("Clear Auth", func(t *testing.T) {
		got.ClearAuth()
		require.NoError(t, got.Save())
		again, err := config.Load(path)
		require.NoError(t, err)
		assert.False(t, again.SignedIn())
		assert.Equal(t, "Inbox", again.RootFolder)
	})
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("NOTESYNC_SYNC_MODE", "realtime-one-way")
	t.Setenv("NOTESYNC_SUPABASE_URL", "http://localhost:54321")

	s, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, core.ModeRealtimeOneWay, s.SyncMode)
	assert.Equal(t, "http://localhost:54321", s.Supabase.URL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("Unknown Mode", func(t *testing.T) {
		path := filepath.Join(dir, "mode.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sync_mode: sideways\n"), 0600))
		_, err := config.Load(path)
		assert.Error(t, err)
	})

	t.Run("Template Without Id", func(t *testing.T) {
		path := filepath.Join(dir, "tmpl.yaml")
		body := "note_template: |\n  ---\n  title: \"${title}\"\n  ---\n  ${content}\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))
		_, err := config.Load(path)
		assert.ErrorContains(t, err, "note_template")
	})
}

func TestEffectiveTemplate(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	custom := "---\nid: \"${id}\"\n---\n${content}"
	require.NoError(t, s.Set(config.KeyNoteTemplate, custom))
	assert.Equal(t, custom, s.EffectiveTemplate())

	assert.Equal(t, template.DefaultNoteTemplate, s.TemplateFor(core.ModeTwoWay))
	assert.Equal(t, custom, s.TemplateFor(core.ModeOneWayDelete))

	require.NoError(t, s.Set(config.KeySyncMode, "two-way"))
	assert.Equal(t, template.DefaultNoteTemplate, s.EffectiveTemplate())
}

func TestSet(t *testing.T) {
	s, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	require.NoError(t, s.Set(config.KeySyncInterval, "30m"))
	assert.Equal(t, 30*time.Minute, s.SyncInterval)
	require.NoError(t, s.Set(config.KeySyncLinks, "yes"))
	assert.True(t, s.SyncLinks)
	require.NoError(t, s.Set(config.KeyIDBatchThreshold, "25"))
	assert.Equal(t, 25, s.IDBatchThreshold)

	assert.Error(t, s.Set(config.KeySyncMode, "bogus"))
	assert.Equal(t, core.ModeOneWay, s.SyncMode)
	assert.Error(t, s.Set(config.KeySyncLinks, "maybe"))
	assert.Error(t, s.Set("nope", "x"))
	assert.Error(t, s.Set(config.KeyIDBatchThreshold, "0"))
}
