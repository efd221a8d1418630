package core

import (
	"context"
	"time"
)

// FileOp is the kind of change reported by a FileStore watch.
type FileOp int

const (
	FileModified FileOp = iota
	FileDeleted
)

func (o FileOp) String() string {
	if o == FileDeleted {
		return "delete"
	}
	return "modify"
}

// FileEvent is a single change to a vault file. Path is vault-relative with
// forward slashes.
type FileEvent struct {
	Path string
	Op   FileOp
}

// FileInfo describes one vault file.
type FileInfo struct {
	Path    string
	ModTime time.Time
}

// FileStore is the host vault: a tree of text and binary files addressed by
// vault-relative slash paths.
type FileStore interface {
	// List returns every regular file in the vault.
	List(ctx context.Context) ([]FileInfo, error)
	Read(ctx context.Context, path string) (string, error)
	// Write creates or overwrites path with text.
	Write(ctx context.Context, path, text string) error
	WriteBinary(ctx context.Context, path string, data []byte) error
	Rename(ctx context.Context, from, to string) error
	Remove(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	MkdirAll(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	// Watch streams modify and delete events until ctx is cancelled.
	Watch(ctx context.Context) (<-chan FileEvent, error)
}

// NoteHandler receives a single changed note. Deletions arrive as tombstones.
type NoteHandler func(ctx context.Context, n Note)

// Subscription is an active change feed. Close is idempotent.
type Subscription interface {
	Close() error
}

// LocalStore is the file-backed side of a sync.
type LocalStore interface {
	Init(ctx context.Context) error
	GetAllNotes(ctx context.Context) ([]LocalNote, error)
	// ModifiedSince returns notes changed on disk after t, or renamed by hand.
	ModifiedSince(ctx context.Context, t time.Time) ([]Note, error)
	UpsertNotes(ctx context.Context, notes []Note, markDeleted bool) error
	DeleteNotes(ctx context.Context, notes []Note) error
	// OnNoteChange replaces any earlier subscription.
	OnNoteChange(ctx context.Context, h NoteHandler, includeDeletes bool) (Subscription, error)
	OffNoteChange() error
	// CollectLinks returns the sorted unique link targets found in the vault.
	CollectLinks(ctx context.Context) ([]string, error)
}

// Filter narrows GetAllNotes on the remote side.
type Filter struct {
	// Text is matched as a substring against title or content.
	Text string
}

// RemoteStore is the cloud side of a sync.
type RemoteStore interface {
	SignedIn() bool
	GetAllNotes(ctx context.Context, f Filter) ([]Note, error)
	UpdateNotes(ctx context.Context, notes []Note) error
	CreateEmptyNote(ctx context.Context) (Note, error)
	GetNoteByTitle(ctx context.Context, title string) (Note, error)
	OnNoteChange(ctx context.Context, h NoteHandler) (Subscription, error)
	RemoveAllChannels() error
}

// AttachmentFetcher downloads binaries referenced by a note source.
type AttachmentFetcher interface {
	// Match returns the file name to store the attachment under when source
	// points at a recognized storage location.
	Match(source string) (name string, ok bool)
	Download(ctx context.Context, source string) ([]byte, error)
}
