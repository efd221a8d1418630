package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/template"
	"github.com/aretw0/notesync/pkg/title"
)

const noteExt = ".md"

// Config holds the configuration of the local note store.
type Config struct {
	// Folder is the vault-relative root folder of synced notes. "/" is the
	// vault root, where only top-level files are in scope.
	Folder            string
	AttachmentsFolder string
	NoteTemplate      string
	Title             title.Settings
	Engine            *template.Engine
	Attachments       core.AttachmentFetcher
	Logger            *slog.Logger
}

// Store is the local note store. It keeps an index from note id to the file
// bound to it, rebuilt on every full scan and patched on single writes.
type Store struct {
	files    core.FileStore
	config   Config
	engine   *template.Engine
	resolver *title.Resolver
	logger   *slog.Logger
	scope    string

	mu    sync.Mutex
	index map[string]core.LocalNote
	sub   *subscription

	writes   int
	lastScan time.Time
}

// NewStore creates a Store over files.
func NewStore(files core.FileStore, config Config) *Store {
	config.Folder = core.NormalizeFolder(config.Folder)
	if config.AttachmentsFolder != "" {
		config.AttachmentsFolder = strings.Trim(config.AttachmentsFolder, "/")
	}
	if config.NoteTemplate == "" {
		config.NoteTemplate = template.DefaultNoteTemplate
	}
	if config.Engine == nil {
		config.Engine = template.New("")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Store{
		files:    files,
		config:   config,
		engine:   config.Engine,
		resolver: title.NewResolver(config.Engine),
		logger:   config.Logger,
		scope:    scopePattern(config.Folder),
		index:    make(map[string]core.LocalNote),
	}
}

func scopePattern(folder string) string {
	if folder == "/" {
		return "*"
	}
	return escapeGlob(folder) + "/**"
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InScope reports whether a vault path belongs to the note folder.
func (s *Store) InScope(p string) bool {
	if !strings.HasSuffix(p, noteExt) {
		return false
	}
	ok, err := doublestar.Match(s.scope, p)
	return err == nil && ok
}

// Folder returns the normalized note folder.
func (s *Store) Folder() string { return s.config.Folder }

// Init builds the index.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.GetAllNotes(ctx)
	return err
}

// GetAllNotes scans every in-scope file and replaces the index. Files that
// cannot be read or parsed, and files without an id, are skipped.
func (s *Store) GetAllNotes(ctx context.Context) ([]core.LocalNote, error) {
	files, err := s.files.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing notes: %w", err)
	}
	notes := make([]core.LocalNote, 0, len(files))
	for _, f := range files {
		if !s.InScope(f.Path) {
			continue
		}
		n, err := s.readNote(ctx, f)
		if err != nil {
			s.logger.Warn("skipping unreadable note", "path", f.Path, "error", err)
			continue
		}
		if n.ID() == "" {
			continue
		}
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Path < notes[j].Path })

	index := make(map[string]core.LocalNote, len(notes))
	for _, n := range notes {
		index[n.ID()] = n
	}
	s.mu.Lock()
	s.index = index
	s.lastScan = time.Now()
	s.mu.Unlock()
	return notes, nil
}

func (s *Store) readNote(ctx context.Context, f core.FileInfo) (core.LocalNote, error) {
	raw, err := s.files.Read(ctx, f.Path)
	if err != nil {
		return core.LocalNote{}, err
	}
	fm, body, err := template.Parse(raw)
	if err != nil {
		return core.LocalNote{}, err
	}
	return core.LocalNote{Path: f.Path, FrontMatter: fm, Content: body, ModTime: f.ModTime}, nil
}

// ModifiedSince returns the notes whose file changed after t, or whose
// front-matter title no longer matches the file name.
func (s *Store) ModifiedSince(ctx context.Context, t time.Time) ([]core.Note, error) {
	all, err := s.GetAllNotes(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Note
	for _, n := range all {
		fmTitle := n.FrontMatter.String("title")
		if n.ModTime.After(t) || (fmTitle != "" && fmTitle != n.Stem()) {
			out = append(out, n.ToNote())
		}
	}
	return out, nil
}

// Lookup returns the binding for id.
func (s *Store) Lookup(id string) (core.LocalNote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	return n, ok
}

func (s *Store) bind(n core.LocalNote) {
	s.mu.Lock()
	s.index[n.ID()] = n
	s.mu.Unlock()
}

func (s *Store) unbind(id string) {
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
}

// idByPath finds the note bound to a path.
func (s *Store) idByPath(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.index {
		if n.Path == p {
			return id, true
		}
	}
	return "", false
}

// UpsertNotes materializes notes as files. Unchanged files are not rewritten.
// A failing note does not stop the others; all failures are returned joined.
func (s *Store) UpsertNotes(ctx context.Context, notes []core.Note, markDeleted bool) error {
	if s.config.Folder != "/" {
		if err := s.files.MkdirAll(ctx, s.config.Folder); err != nil {
			return fmt.Errorf("failed to create folder %q: %w", s.config.Folder, err)
		}
	}
	if s.config.AttachmentsFolder != "" {
		if err := s.files.MkdirAll(ctx, s.config.AttachmentsFolder); err != nil {
			return fmt.Errorf("failed to create folder %q: %w", s.config.AttachmentsFolder, err)
		}
	}

	var errs []error
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if p, err := s.upsertNote(ctx, n, markDeleted); err != nil {
			errs = append(errs, fmt.Errorf("failed to write note %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) upsertNote(ctx context.Context, n core.Note, markDeleted bool) (string, error) {
	content := s.engine.Render(s.config.NoteTemplate, n, markDeleted)

	bound, ok := s.Lookup(n.ID)
	if ok {
		exists, err := s.files.Exists(ctx, bound.Path)
		if err != nil {
			return bound.Path, err
		}
		ok = exists
	}

	dir := s.config.Folder
	exclude := ""
	if ok {
		dir = dirOf(bound.Path)
		exclude = bound.Path
	}
	existing, owners, err := s.namesIn(ctx, dir, exclude)
	if err != nil {
		return core.JoinPath(dir, n.ID+noteExt), err
	}
	name := s.resolver.Resolve(n, existing, s.config.Title)
	if owner, taken := owners[name]; taken && owner != n.ID {
		// Never clobber a file that belongs to another note.
		name = title.Disambiguate(name, existing)
	}
	target := core.JoinPath(dir, name)

	if ok {
		current, err := s.files.Read(ctx, bound.Path)
		if err != nil {
			return bound.Path, err
		}
		if current == content && bound.Path == target {
			s.logger.Debug("note unchanged, skipping write", "path", target, "id", n.ID)
			return target, s.fetchAttachment(ctx, n)
		}
		if current != content {
			if err := s.write(ctx, bound.Path, content); err != nil {
				return bound.Path, err
			}
		}
		if bound.Path != target {
			if err := s.files.Rename(ctx, bound.Path, target); err != nil {
				return target, err
			}
		}
	} else {
		stale, err := s.files.Exists(ctx, target)
		if err != nil {
			return target, err
		}
		if stale {
			s.logger.Debug("removing stale file", "path", target, "id", n.ID)
			if err := s.files.Remove(ctx, target); err != nil {
				return target, err
			}
		}
		if err := s.write(ctx, target, content); err != nil {
			return target, err
		}
	}

	fm, body, err := template.Parse(content)
	if err != nil {
		s.logger.Warn("rendered note has invalid front-matter", "path", target, "error", err)
	}
	info, err := s.files.Stat(ctx, target)
	if err != nil {
		return target, err
	}
	s.bind(core.LocalNote{Path: target, FrontMatter: withID(fm, n.ID), Content: body, ModTime: info.ModTime})

	return target, s.fetchAttachment(ctx, n)
}

// withID keeps the binding keyed by id even when a custom template drops it.
func withID(fm core.FrontMatter, id string) core.FrontMatter {
	if fm == nil {
		fm = core.FrontMatter{}
	}
	if fm.String("id") == "" {
		fm["id"] = id
	}
	return fm
}

func (s *Store) write(ctx context.Context, p, content string) error {
	if err := s.files.Write(ctx, p, content); err != nil {
		return err
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

func dirOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return "/"
	}
	return d
}

// namesIn lists the file names directly inside dir, as they are on disk now,
// along with the id of the note bound to each one.
func (s *Store) namesIn(ctx context.Context, dir, exclude string) (map[string]bool, map[string]string, error) {
	files, err := s.files.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	names := make(map[string]bool)
	for _, f := range files {
		if f.Path == exclude || dirOf(f.Path) != dir {
			continue
		}
		names[path.Base(f.Path)] = true
	}

	owners := make(map[string]string)
	s.mu.Lock()
	for id, n := range s.index {
		if n.Path != exclude && dirOf(n.Path) == dir {
			owners[path.Base(n.Path)] = id
		}
	}
	s.mu.Unlock()
	return names, owners, nil
}

func (s *Store) fetchAttachment(ctx context.Context, n core.Note) error {
	if s.config.AttachmentsFolder == "" || s.config.Attachments == nil || n.GetSource() == "" {
		return nil
	}
	name, ok := s.config.Attachments.Match(n.GetSource())
	if !ok {
		return nil
	}
	target := core.JoinPath(s.config.AttachmentsFolder, name)
	exists, err := s.files.Exists(ctx, target)
	if err != nil || exists {
		return err
	}
	data, err := s.config.Attachments.Download(ctx, n.GetSource())
	if err != nil {
		return fmt.Errorf("failed to download attachment %q: %w", name, err)
	}
	if err := s.files.WriteBinary(ctx, target, data); err != nil {
		return fmt.Errorf("failed to write attachment %q: %w", target, err)
	}
	return nil
}

// DeleteNotes removes the files bound to notes. Unbound notes are skipped.
func (s *Store) DeleteNotes(ctx context.Context, notes []core.Note) error {
	var errs []error
	for _, n := range notes {
		bound, ok := s.Lookup(n.ID)
		if !ok {
			continue
		}
		if err := s.files.Remove(ctx, bound.Path); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete note %q: %w", bound.Path, err))
			continue
		}
		s.unbind(n.ID)
	}
	return errors.Join(errs...)
}

// Search returns in-scope notes whose front-matter values or body contain
// text, ignoring case.
func (s *Store) Search(ctx context.Context, text string) ([]core.LocalNote, error) {
	all, err := s.GetAllNotes(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var out []core.LocalNote
	for _, n := range all {
		if strings.Contains(strings.ToLower(n.Content), needle) || frontMatterContains(n.FrontMatter, needle) {
			out = append(out, n)
		}
	}
	return out, nil
}

func frontMatterContains(fm core.FrontMatter, needle string) bool {
	for k := range fm {
		if strings.Contains(strings.ToLower(fm.String(k)), needle) {
			return true
		}
	}
	return false
}

var _ core.LocalStore = (*Store)(nil)
