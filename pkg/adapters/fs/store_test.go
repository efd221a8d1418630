package fs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/template"
	"github.com/aretw0/notesync/pkg/title"
)

// countingFiles wraps a FileStore and counts text writes.
type countingFiles struct {
	core.FileStore
	mu     sync.Mutex
	writes map[string]int
	failOn string
}

func (c *countingFiles) Write(ctx context.Context, p, text string) error {
	if c.failOn != "" && p == c.failOn {
		return errors.New("disk full")
	}
	c.mu.Lock()
	c.writes[p]++
	c.mu.Unlock()
	return c.FileStore.Write(ctx, p, text)
}

func (c *countingFiles) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.writes {
		n += v
	}
	return n
}

// setupStore creates a vault in a temp dir and a store over it.
func setupStore(t *testing.T, opts ...func(*fs.Config)) (*fs.Store, *countingFiles, string) {
	t.Helper()

	root := filepath.Join(t.TempDir(), "vault")
	vault := fs.NewVault(fs.VaultConfig{Path: root})
	require.NoError(t, vault.Initialize(context.Background()))

	files := &countingFiles{FileStore: vault, writes: map[string]int{}}
	cfg := fs.Config{
		Folder: "Notes",
		Title:  title.Settings{AutoGenerate: true},
		Engine: template.New("YYYY-MM-DD"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return fs.NewStore(files, cfg), files, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func noteFile(id, title, body string) string {
	return "---\nid: \"" + id + "\"\ntitle: \"" + title + "\"\n---\n" + body
}

func TestGetAllNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("Root Folder Is Not Recursive", func(t *testing.T) {
		store, _, root := setupStore(t, func(c *fs.Config) { c.Folder = "/" })
		writeFile(t, root, "Note.md", noteFile("a", "Note", "top"))
		writeFile(t, root, "Sub/Note.md", noteFile("b", "Note", "nested"))

		notes, err := store.GetAllNotes(ctx)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Note.md", notes[0].Path)
		assert.True(t, store.InScope("Note.md"))
		assert.False(t, store.InScope("Sub/Note.md"))
	})

	t.Run("Folder Scope Includes Subfolders", func(t *testing.T) {
		store, _, root := setupStore(t)
		writeFile(t, root, "Notes/a.md", noteFile("a", "", ""))
		writeFile(t, root, "Notes/Sub/b.md", noteFile("b", "", ""))
		writeFile(t, root, "NotesArchive/c.md", noteFile("c", "", ""))
		writeFile(t, root, "Other/d.md", noteFile("d", "", ""))

		notes, err := store.GetAllNotes(ctx)
		require.NoError(t, err)
		assert.Len(t, notes, 2)
	})

	t.Run("Skips Malformed And Unidentified Files", func(t *testing.T) {
		store, _, root := setupStore(t)
		writeFile(t, root, "Notes/good.md", noteFile("good", "", "ok"))
		writeFile(t, root, "Notes/bad.md", "---\nid: [oops\n---\nbody")
		writeFile(t, root, "Notes/plain.md", "no front-matter here")
		writeFile(t, root, "Notes/image.png", "binary")

		notes, err := store.GetAllNotes(ctx)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "good", notes[0].ID())
		assert.Equal(t, "ok", notes[0].Content)
	})
}

func TestModifiedSince(t *testing.T) {
	ctx := context.Background()
	store, _, root := setupStore(t)
	writeFile(t, root, "Notes/Same.md", noteFile("a", "Same", "x"))
	writeFile(t, root, "Notes/Renamed.md", noteFile("b", "Old Title", "y"))
	writeFile(t, root, "Notes/Untitled.md", noteFile("c", "", "z"))

	notes, err := store.ModifiedSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, notes, 3)

	notes, err = store.ModifiedSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "b", notes[0].ID)
	assert.Equal(t, "Renamed", notes[0].GetTitle())
}

func TestUpsertNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("Second Identical Upsert Does Not Write", func(t *testing.T) {
		store, files, root := setupStore(t)
		n := core.Note{ID: "n1", Title: core.String("Hello"), Content: core.String("body")}

		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))

		assert.Equal(t, 1, files.total())
		assert.Contains(t, readFile(t, root, "Notes/Hello.md"), "body")
	})

	t.Run("Idempotent After Rescan", func(t *testing.T) {
		store, files, _ := setupStore(t)
		n := core.Note{ID: "n1", Content: core.String("derived title")}

		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
		require.NoError(t, store.Init(ctx))
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
		assert.Equal(t, 1, files.total())
	})

	t.Run("Derived Titles Avoid Collisions", func(t *testing.T) {
		store, _, root := setupStore(t)
		writeFile(t, root, "Notes/Foo.md", "unrelated")
		writeFile(t, root, "Notes/Foo (1).md", "unrelated")

		n := core.Note{ID: "n2", Content: core.String("Foo")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))

		bound, ok := store.Lookup("n2")
		require.True(t, ok)
		assert.Equal(t, "Notes/Foo (2).md", bound.Path)
		assert.Equal(t, "unrelated", readFile(t, root, "Notes/Foo.md"))
	})

	t.Run("Retitle Renames Bound File", func(t *testing.T) {
		store, _, root := setupStore(t)
		n := core.Note{ID: "n3", Title: core.String("Before"), Content: core.String("body")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))

		n.Title = core.String("After")
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))

		_, err := os.Stat(filepath.Join(root, "Notes", "Before.md"))
		assert.True(t, os.IsNotExist(err))
		assert.Contains(t, readFile(t, root, "Notes/After.md"), `title: "After"`)
	})

	t.Run("Keeps Subfolder Of Bound File", func(t *testing.T) {
		store, _, root := setupStore(t)
		writeFile(t, root, "Notes/Projects/Plan.md", noteFile("n4", "Plan", "old"))
		require.NoError(t, store.Init(ctx))

		n := core.Note{ID: "n4", Title: core.String("Plan"), Content: core.String("new")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
		assert.Contains(t, readFile(t, root, "Notes/Projects/Plan.md"), "new")
	})

	t.Run("Replaces Stale Unbound File", func(t *testing.T) {
		store, _, root := setupStore(t)
		writeFile(t, root, "Notes/Inbox.md", "leftover from an older note")

		n := core.Note{ID: "n5", Title: core.String("Inbox"), Content: core.String("fresh")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
		assert.Contains(t, readFile(t, root, "Notes/Inbox.md"), "fresh")
	})

	t.Run("Does Not Clobber Another Note", func(t *testing.T) {
		store, _, root := setupStore(t)
		a := core.Note{ID: "a", Title: core.String("Same"), Content: core.String("first")}
		b := core.Note{ID: "b", Title: core.String("Same"), Content: core.String("second")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{a, b}, false))

		assert.Contains(t, readFile(t, root, "Notes/Same.md"), "first")
		assert.Contains(t, readFile(t, root, "Notes/Same (1).md"), "second")
	})

	t.Run("Marks Deleted", func(t *testing.T) {
		store, _, root := setupStore(t)
		n := core.Note{ID: "n6", Title: core.String("Gone"), Content: core.String("x")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, true))

		notes, err := store.GetAllNotes(ctx)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		deleted, ok := notes[0].FrontMatter.Bool("deleted")
		assert.True(t, ok)
		assert.True(t, deleted)
		assert.Equal(t, 1, strings.Count(readFile(t, root, "Notes/Gone.md"), "deleted:"))
	})

	t.Run("Root Folder", func(t *testing.T) {
		store, _, root := setupStore(t, func(c *fs.Config) { c.Folder = "/" })
		n := core.Note{ID: "n7", Title: core.String("Top")}
		require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
		assert.FileExists(t, filepath.Join(root, "Top.md"))
	})

	t.Run("One Failure Does Not Stop The Batch", func(t *testing.T) {
		store, files, root := setupStore(t)
		files.failOn = "Notes/Broken.md"
		notes := []core.Note{
			{ID: "x", Title: core.String("Broken")},
			{ID: "y", Title: core.String("Fine")},
		}
		err := store.UpsertNotes(ctx, notes, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `failed to write note "Notes/Broken.md"`)
		assert.FileExists(t, filepath.Join(root, "Notes", "Fine.md"))
	})
}

type fakeFetcher struct {
	calls int
}

func (f *fakeFetcher) Match(source string) (string, bool) {
	if !strings.HasPrefix(source, "https://storage/") {
		return "", false
	}
	return strings.TrimPrefix(source, "https://storage/"), true
}

func (f *fakeFetcher) Download(ctx context.Context, source string) ([]byte, error) {
	f.calls++
	return []byte("PNG"), nil
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{}
	store, _, root := setupStore(t, func(c *fs.Config) {
		c.AttachmentsFolder = "Attachments"
		c.Attachments = fetcher
	})

	n := core.Note{ID: "a1", Title: core.String("Pic"), Source: core.String("https://storage/pic.png")}
	require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))
	require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))

	assert.Equal(t, "PNG", readFile(t, root, "Attachments/pic.png"))
	assert.Equal(t, 1, fetcher.calls)

	other := core.Note{ID: "a2", Title: core.String("Web"), Source: core.String("https://example.com")}
	require.NoError(t, store.UpsertNotes(ctx, []core.Note{other}, false))
	assert.Equal(t, 1, fetcher.calls)
}

func TestDeleteNotes(t *testing.T) {
	ctx := context.Background()
	store, _, root := setupStore(t)
	n := core.Note{ID: "d1", Title: core.String("Doomed")}
	require.NoError(t, store.UpsertNotes(ctx, []core.Note{n}, false))

	err := store.DeleteNotes(ctx, []core.Note{core.Tombstone("d1"), core.Tombstone("unknown")})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "Notes", "Doomed.md"))
	assert.True(t, os.IsNotExist(err))
	_, ok := store.Lookup("d1")
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	store, _, root := setupStore(t)
	writeFile(t, root, "Notes/a.md", "---\nid: a\nsource: \"https://golang.org\"\n---\nnothing")
	writeFile(t, root, "Notes/b.md", noteFile("b", "", "Learning GOLANG today"))
	writeFile(t, root, "Notes/c.md", noteFile("c", "", "rust"))

	notes, err := store.Search(ctx, "golang")
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestOnNoteChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, _, root := setupStore(t)
	writeFile(t, root, "Notes/Watched.md", noteFile("w1", "Watched", "v1"))
	require.NoError(t, store.Init(ctx))

	var mu sync.Mutex
	var got []core.Note
	sub, err := store.OnNoteChange(ctx, func(ctx context.Context, n core.Note) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	}, true)
	require.NoError(t, err)
	defer sub.Close()

	seen := func(pred func(core.Note) bool) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, n := range got {
				if pred(n) {
					return true
				}
			}
			return false
		}
	}

	writeFile(t, root, "Notes/Watched.md", noteFile("w1", "Watched", "v2"))
	writeFile(t, root, "Elsewhere/Ignored.md", noteFile("w2", "Ignored", "x"))
	assert.Eventually(t, seen(func(n core.Note) bool {
		return n.ID == "w1" && n.GetContent() == "v2"
	}), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "Notes", "Watched.md")))
	assert.Eventually(t, seen(func(n core.Note) bool {
		return n.ID == "w1" && n.IsDeleted()
	}), 5*time.Second, 20*time.Millisecond)

	assert.False(t, seen(func(n core.Note) bool { return n.ID == "w2" })())
	require.NoError(t, store.OffNoteChange())
}
