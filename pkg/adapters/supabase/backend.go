// Package supabase implements the remote note store on top of a Supabase
// project: PostgREST for the notes table, GoTrue for sign-in, Storage for
// attachments, and the Realtime websocket for change feeds.
package supabase

import (
	"context"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// Table is the notes table name.
const Table = "notes"

// Record is one row of the notes table.
type Record struct {
	ID                string  `json:"id"`
	Title             *string `json:"title,omitempty"`
	Content           *string `json:"content,omitempty"`
	Source            *string `json:"source,omitempty"`
	SourceTitle       *string `json:"source_title,omitempty"`
	SourceDescription *string `json:"source_description,omitempty"`
	SourceImageURL    *string `json:"source_image_url,omitempty"`
	CreatedAt         *string `json:"created_at,omitempty"`
	ModifiedAt        *string `json:"modified_at,omitempty"`
	Deleted           *bool   `json:"deleted,omitempty"`
	Shared            *bool   `json:"shared,omitempty"`
	Encrypted         *bool   `json:"encrypted,omitempty"`
	Partition         string  `json:"_partition,omitempty"`
}

// Note converts the row to the shared note shape.
func (r Record) Note() core.Note {
	return core.Note{
		ID:                r.ID,
		Title:             r.Title,
		Content:           r.Content,
		Source:            r.Source,
		SourceTitle:       r.SourceTitle,
		SourceDescription: r.SourceDescription,
		SourceImageURL:    r.SourceImageURL,
		CreatedAt:         r.CreatedAt,
		ModifiedAt:        r.ModifiedAt,
		Deleted:           r.Deleted,
		Encrypted:         r.Encrypted,
	}
}

// Query selects rows of the notes table.
type Query struct {
	// Partitions is required; rows outside it are never returned.
	Partitions []string
	// IDs narrows the result when not empty.
	IDs []string
	// Title matches exactly when not empty.
	Title string
	// IncludeDeleted also returns tombstoned rows.
	IncludeDeleted bool
}

// Session is an authenticated user session.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Backend is the slice of the Supabase API the store needs.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	SignOut(ctx context.Context) error
	Select(ctx context.Context, q Query) ([]Record, error)
	// Upsert inserts or replaces rows by id.
	Upsert(ctx context.Context, records []Record) error
	Insert(ctx context.Context, r Record) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	// Subscribe streams every change to the notes table until the
	// subscription is closed or ctx is done.
	Subscribe(ctx context.Context, h func(Record)) (core.Subscription, error)
}
