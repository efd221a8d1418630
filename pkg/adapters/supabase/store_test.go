package supabase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/adapters/supabase/supabasetest"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/crypto"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T, opts ...func(*supabase.Config)) (*supabase.Store, *supabasetest.Backend) {
	t.Helper()
	backend := supabasetest.New()
	cfg := supabase.Config{
		Identity: supabase.Identity{UserID: "user-1", LegacyID: "legacy-1"},
		Now:      func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return supabase.NewStore(backend, cfg), backend
}

func row(id, partition, title, content string) supabase.Record {
	return supabase.Record{
		ID:        id,
		Title:     core.String(title),
		Content:   core.String(content),
		Source:    core.String(""),
		Deleted:   core.Bool(false),
		Encrypted: core.Bool(false),
		Partition: partition,
	}
}

func encryptedRow(t *testing.T, id, title, content, key string) supabase.Record {
	t.Helper()
	n, err := crypto.New(key).EncryptNote(core.Note{ID: id, Title: core.String(title), Content: core.String(content)})
	require.NoError(t, err)
	return supabase.Record{
		ID: id, Title: n.Title, Content: n.Content,
		Deleted: core.Bool(false), Encrypted: core.Bool(true), Partition: "user-1",
	}
}

func TestGetAllNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("Not Signed In", func(t *testing.T) {
		store, backend := setupStore(t, func(c *supabase.Config) { c.Identity = supabase.Identity{} })
		_, err := store.GetAllNotes(ctx, core.Filter{})
		assert.ErrorIs(t, err, core.ErrNotSignedIn)
		assert.Empty(t, backend.Selects)
	})

	t.Run("Scoped To Partitions And Live Notes", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("a", "user-1", "A", "one"))
		backend.Put(row("b", "legacy-1", "B", "two"))
		backend.Put(row("c", "someone-else", "C", "three"))
		dead := row("d", "user-1", "D", "four")
		dead.Deleted = core.Bool(true)
		backend.Put(dead)

		notes, err := store.GetAllNotes(ctx, core.Filter{})
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, "a", notes[0].ID)
		assert.Equal(t, "b", notes[1].ID)
		assert.Equal(t, []string{"user-1", "legacy-1"}, backend.Selects[0].Partitions)
	})

	t.Run("Text Filter", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("a", "user-1", "groceries", "milk"))
		backend.Put(row("b", "user-1", "work", "ship the release"))
		backend.Put(row("c", "user-1", "misc", "nothing"))

		notes, err := store.GetAllNotes(ctx, core.Filter{Text: "i"})
		require.NoError(t, err)
		assert.Len(t, notes, 3)

		notes, err = store.GetAllNotes(ctx, core.Filter{Text: "release"})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "b", notes[0].ID)
	})

	t.Run("Decrypts And Reports Bad Notes", func(t *testing.T) {
		store, backend := setupStore(t, func(c *supabase.Config) { c.EncryptionKey = "secret" })
		backend.Put(encryptedRow(t, "good", "Hello", "World", "secret"))
		backend.Put(encryptedRow(t, "bad", "Other", "Key", "not-the-key"))
		backend.Put(row("plain", "user-1", "Plain", "text"))

		notes, err := store.GetAllNotes(ctx, core.Filter{})
		assert.ErrorIs(t, err, core.ErrWrongKey)
		require.Len(t, notes, 2)
		assert.Equal(t, "Hello", notes[0].GetTitle())
		assert.Equal(t, "World", notes[0].GetContent())
		assert.Equal(t, "Plain", notes[1].GetTitle())
	})

	t.Run("Missing Key", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(encryptedRow(t, "x", "T", "C", "secret"))
		_, err := store.GetAllNotes(ctx, core.Filter{})
		assert.ErrorIs(t, err, core.ErrMissingKey)
	})

	t.Run("Remote Failure", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Fail = errors.New("(42501) permission denied")
		_, err := store.GetAllNotes(ctx, core.Filter{})
		assert.ErrorIs(t, err, core.ErrRemote)
		assert.NotErrorIs(t, err, core.ErrNotSignedIn)
		assert.Contains(t, err.Error(), "permission denied")
	})
}

func TestUpdateNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("Unset Fields Keep Remote Values", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("n1", "user-1", "A", "B"))

		err := store.UpdateNotes(ctx, []core.Note{{ID: "n1", Content: core.String("C")}})
		require.NoError(t, err)

		got, _ := backend.Get("n1")
		assert.Equal(t, "A", core.Deref(got.Title))
		assert.Equal(t, "C", core.Deref(got.Content))
		assert.False(t, *got.Deleted)
		assert.Equal(t, fixedNow.Format(time.RFC3339Nano), core.Deref(got.ModifiedAt))
		assert.Equal(t, "user-1", got.Partition)
	})

	t.Run("Identical Note Is Not Written", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("n1", "user-1", "A", "B"))

		err := store.UpdateNotes(ctx, []core.Note{{ID: "n1", Title: core.String("A"), Content: core.String("B")}})
		require.NoError(t, err)
		assert.Equal(t, 0, backend.UpsertCalls)
	})

	t.Run("Empty Incoming Text Is Not A Change", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("n1", "user-1", "A", "B"))

		err := store.UpdateNotes(ctx, []core.Note{{ID: "n1", Title: core.String(""), Content: core.String("B")}})
		require.NoError(t, err)
		assert.Equal(t, 0, backend.UpsertCalls)
	})

	t.Run("Unknown Notes Are Dropped", func(t *testing.T) {
		store, backend := setupStore(t)
		err := store.UpdateNotes(ctx, []core.Note{{ID: "ghost", Content: core.String("boo")}})
		require.NoError(t, err)
		assert.Equal(t, 0, backend.UpsertCalls)
		_, ok := backend.Get("ghost")
		assert.False(t, ok)
	})

	t.Run("Tombstone", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("n1", "user-1", "A", "B"))

		require.NoError(t, store.UpdateNotes(ctx, []core.Note{core.Tombstone("n1")}))
		got, _ := backend.Get("n1")
		assert.True(t, *got.Deleted)
		assert.Equal(t, "B", core.Deref(got.Content))
	})

	t.Run("Id Filter Below Threshold Only", func(t *testing.T) {
		store, backend := setupStore(t, func(c *supabase.Config) { c.IDBatchThreshold = 2 })
		backend.Put(row("a", "user-1", "A", "a"))
		backend.Put(row("b", "user-1", "B", "b"))

		require.NoError(t, store.UpdateNotes(ctx, []core.Note{{ID: "a", Content: core.String("x")}}))
		require.NoError(t, store.UpdateNotes(ctx, []core.Note{
			{ID: "a", Content: core.String("y")},
			{ID: "b", Content: core.String("z")},
		}))

		require.Len(t, backend.Selects, 2)
		assert.Equal(t, []string{"a"}, backend.Selects[0].IDs)
		assert.Empty(t, backend.Selects[1].IDs)
		got, _ := backend.Get("b")
		assert.Equal(t, "z", core.Deref(got.Content))
	})

	t.Run("Encrypted Notes Stay Encrypted", func(t *testing.T) {
		store, backend := setupStore(t, func(c *supabase.Config) { c.EncryptionKey = "secret" })
		backend.Put(encryptedRow(t, "e1", "Title", "Old", "secret"))

		require.NoError(t, store.UpdateNotes(ctx, []core.Note{{ID: "e1", Content: core.String("New")}}))

		got, _ := backend.Get("e1")
		assert.True(t, *got.Encrypted)
		assert.NotEqual(t, "New", core.Deref(got.Content))
		dec, err := crypto.New("secret").DecryptNote(got.Note())
		require.NoError(t, err)
		assert.Equal(t, "New", dec.GetContent())
		assert.Equal(t, "Title", dec.GetTitle())
	})

	t.Run("Encrypted Note With Empty Title Stays Readable", func(t *testing.T) {
		store, backend := setupStore(t, func(c *supabase.Config) { c.EncryptionKey = "key" })
		backend.Put(encryptedRow(t, "n1", "", "hello", "key"))

		require.NoError(t, store.UpdateNotes(ctx, []core.Note{{ID: "n1", Content: core.String("edited")}}))

		got, _ := backend.Get("n1")
		assert.Equal(t, "", core.Deref(got.Title))

		notes, err := store.GetAllNotes(ctx, core.Filter{})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "", notes[0].GetTitle())
		assert.Equal(t, "edited", notes[0].GetContent())

		require.NoError(t, store.UpdateNotes(ctx, []core.Note{{ID: "n1", Content: core.String("again")}}))
	})

	t.Run("Upsert Failure", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("n1", "user-1", "A", "B"))
		backend.Fail = errors.New("boom")
		err := store.UpdateNotes(ctx, []core.Note{{ID: "n1", Content: core.String("C")}})
		assert.ErrorIs(t, err, core.ErrRemote)
	})
}

func TestDiffersAndMerge(t *testing.T) {
	remote := core.Note{ID: "n", Title: core.String("A"), Content: core.String("B"), Deleted: core.Bool(false)}

	assert.False(t, supabase.Differs(remote, core.Note{ID: "n"}))
	assert.False(t, supabase.Differs(remote, core.Note{ID: "n", Deleted: core.Bool(false)}))
	assert.True(t, supabase.Differs(remote, core.Note{ID: "n", Source: core.String("s")}))
	assert.True(t, supabase.Differs(remote, core.Tombstone("n")))

	m := supabase.Merge(remote, core.Note{ID: "n", Content: core.String("C")}, "now")
	assert.Equal(t, "A", m.GetTitle())
	assert.Equal(t, "C", m.GetContent())
	assert.False(t, m.IsDeleted())
	assert.Equal(t, "now", m.GetModifiedAt())
}

func TestCreateEmptyNote(t *testing.T) {
	ctx := context.Background()
	store, backend := setupStore(t)

	n, err := store.CreateEmptyNote(ctx)
	require.NoError(t, err)
	assert.Len(t, n.ID, 36)

	got, ok := backend.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.Partition)
	assert.Equal(t, "", core.Deref(got.Content))
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), core.Deref(got.CreatedAt))

	unsigned, _ := setupStore(t, func(c *supabase.Config) { c.Identity = supabase.Identity{} })
	_, err = unsigned.CreateEmptyNote(ctx)
	assert.ErrorIs(t, err, core.ErrNotSignedIn)
}

func TestGetNoteByTitle(t *testing.T) {
	ctx := context.Background()

	t.Run("Plain", func(t *testing.T) {
		store, backend := setupStore(t)
		backend.Put(row("l1", "user-1", "Links from Obsidian", "[[a]]"))
		n, err := store.GetNoteByTitle(ctx, "Links from Obsidian")
		require.NoError(t, err)
		assert.Equal(t, "l1", n.ID)
	})

	t.Run("Encrypted", func(t *testing.T) {
		store, backend := setupStore(t, func(c *supabase.Config) { c.EncryptionKey = "secret" })
		backend.Put(encryptedRow(t, "l2", "Links", "[[b]]", "secret"))
		n, err := store.GetNoteByTitle(ctx, "Links")
		require.NoError(t, err)
		assert.Equal(t, "l2", n.ID)
		assert.Equal(t, "[[b]]", n.GetContent())
	})

	t.Run("Not Found", func(t *testing.T) {
		store, _ := setupStore(t)
		_, err := store.GetNoteByTitle(ctx, "nope")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestOnNoteChange(t *testing.T) {
	ctx := context.Background()
	store, backend := setupStore(t, func(c *supabase.Config) { c.EncryptionKey = "secret" })

	var got []core.Note
	_, err := store.OnNoteChange(ctx, func(ctx context.Context, n core.Note) { got = append(got, n) })
	require.NoError(t, err)
	_, err = store.OnNoteChange(ctx, func(ctx context.Context, n core.Note) { got = append(got, n) })
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Subscribers())

	backend.Emit(encryptedRow(t, "mine", "T", "secret body", "secret"))
	backend.Emit(row("theirs", "other", "X", "Y"))

	require.Len(t, got, 1)
	assert.Equal(t, "secret body", got[0].GetContent())

	require.NoError(t, store.RemoveAllChannels())
	assert.Equal(t, 0, backend.Subscribers())
}
