package core

import "time"

// FrontMatter is the untyped key-value block at the top of a local note file.
// Hand-edited files may carry any keys, so fields are extracted on use.
type FrontMatter map[string]any

// String returns the value under key as a string, or "" when absent or null.
func (fm FrontMatter) String(key string) string {
	v, ok := fm[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmtAny(t)
	}
}

// Bool returns the value under key as a bool. Strings "true"/"false" are accepted.
func (fm FrontMatter) Bool(key string) (value, ok bool) {
	switch t := fm[key].(type) {
	case bool:
		return t, true
	case string:
		switch t {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// Note is the canonical sync record shared by the local and remote stores.
//
// Every field except ID is optional. A nil pointer means "not provided", which
// is different from an empty value: the remote merge only overrides fields the
// caller actually set.
type Note struct {
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
	Encrypted         *bool   `json:"encrypted,omitempty"`
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (n Note) GetTitle() string             { return Deref(n.Title) }
func (n Note) GetContent() string           { return Deref(n.Content) }
func (n Note) GetSource() string            { return Deref(n.Source) }
func (n Note) GetSourceTitle() string       { return Deref(n.SourceTitle) }
func (n Note) GetSourceDescription() string { return Deref(n.SourceDescription) }
func (n Note) GetSourceImageURL() string    { return Deref(n.SourceImageURL) }
func (n Note) GetCreatedAt() string         { return Deref(n.CreatedAt) }
func (n Note) GetModifiedAt() string        { return Deref(n.ModifiedAt) }

// IsDeleted reports whether the note carries a true tombstone flag.
func (n Note) IsDeleted() bool { return n.Deleted != nil && *n.Deleted }

// IsEncrypted reports whether the free-text fields hold ciphertext.
func (n Note) IsEncrypted() bool { return n.Encrypted != nil && *n.Encrypted }

// Tombstone returns the minimal delete marker for id.
func Tombstone(id string) Note {
	return Note{ID: id, Deleted: Bool(true)}
}

// LocalNote is the binding between a note id and the file that holds it.
type LocalNote struct {
	Path        string
	FrontMatter FrontMatter
	Content     string
	ModTime     time.Time
}

// ID returns the note id carried in the front-matter.
func (l LocalNote) ID() string { return l.FrontMatter.String("id") }

// Stem returns the file name without directory and extension.
func (l LocalNote) Stem() string { return FileStem(l.Path) }

// ToNote converts the binding into the shape pushed to the remote store.
// The title is the file name whenever the front-matter names one, so renaming
// the file renames the note.
func (l LocalNote) ToNote() Note {
	fm := l.FrontMatter
	n := Note{
		ID:         l.ID(),
		Content:    String(l.Content),
		Source:     String(fm.String("source")),
		ModifiedAt: String(l.ModTime.UTC().Format(time.RFC3339)),
		Deleted:    Bool(false),
	}
	if fm.String("title") != "" {
		n.Title = String(l.Stem())
	} else {
		n.Title = String("")
	}
	if d, ok := fm.Bool("deleted"); ok {
		n.Deleted = Bool(d)
	}
	return n
}
