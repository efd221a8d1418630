// Package config persists notesync settings in a YAML file, with
// NOTESYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/template"
)

// EnvPrefix prefixes environment overrides, e.g. NOTESYNC_SYNC_MODE.
const EnvPrefix = "NOTESYNC"

// Keys.
const (
	KeyVault             = "vault"
	KeyRootFolder        = "root_folder"
	KeyAttachmentsFolder = "attachments_folder"
	KeyNoteTemplate      = "note_template"
	KeyTitleTemplate     = "title_template"
	KeyDateFormat        = "date_format"
	KeySyncMode          = "sync_mode"
	KeyNotesFilter       = "notes_filter"
	KeyAutoGenerateTitle = "auto_generate_title"
	KeyLastSyncTime      = "last_sync_time"
	KeySyncOnStartup     = "sync_on_startup"
	KeySyncLinks         = "sync_links"
	KeyLinksNoteTitle    = "links_note_title"
	KeySyncInterval      = "sync_interval"
	KeySupabaseURL       = "supabase.url"
	KeySupabaseAnonKey   = "supabase.anon_key"
	KeyAuthEmail         = "auth.email"
	KeyAuthUserID        = "auth.user_id"
	KeyAuthLegacyID      = "auth.legacy_id"
	KeyAuthRefreshToken  = "auth.refresh_token"
	KeyEncryptionKey     = "encryption_key"
	KeyIDBatchThreshold  = "id_batch_threshold"
)

// Supabase locates the remote project.
type Supabase struct {
	URL     string
	AnonKey string
}

// Auth is the signed-in identity. The password is never stored.
type Auth struct {
	Email        string
	UserID       string
	LegacyID     string
	RefreshToken string
}

// Settings are the persisted settings.
type Settings struct {
	Vault             string
	RootFolder        string
	AttachmentsFolder string
	NoteTemplate      string
	TitleTemplate     string
	DateFormat        string
	SyncMode          core.SyncMode
	NotesFilter       string
	AutoGenerateTitle bool
	LastSyncTime      time.Time
	SyncOnStartup     bool
	SyncLinks         bool
	LinksNoteTitle    string
	// SyncInterval enables auto-sync when positive.
	SyncInterval     time.Duration
	Supabase         Supabase
	Auth             Auth
	EncryptionKey    string
	IDBatchThreshold int

	v    *viper.Viper
	path string
}

// DefaultPath returns $XDG_CONFIG_HOME/notesync/config.yaml or the platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(dir, "notesync", "config.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyVault, ".")
	v.SetDefault(KeyRootFolder, "FleetingNotesApp")
	v.SetDefault(KeyAttachmentsFolder, "")
	v.SetDefault(KeyNoteTemplate, template.DefaultNoteTemplate)
	v.SetDefault(KeyTitleTemplate, template.DefaultTitleTemplate)
	v.SetDefault(KeyDateFormat, template.DefaultDateFormat)
	v.SetDefault(KeySyncMode, string(core.ModeOneWay))
	v.SetDefault(KeyNotesFilter, "")
	v.SetDefault(KeyAutoGenerateTitle, true)
	v.SetDefault(KeySyncOnStartup, false)
	v.SetDefault(KeySyncLinks, false)
	v.SetDefault(KeyLinksNoteTitle, "Links from Obsidian")
	v.SetDefault(KeySyncInterval, "0s")
	v.SetDefault(KeyIDBatchThreshold, 100)
}

// Load reads settings from path. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	s := &Settings{
		Vault:             v.GetString(KeyVault),
		RootFolder:        v.GetString(KeyRootFolder),
		AttachmentsFolder: v.GetString(KeyAttachmentsFolder),
		NoteTemplate:      v.GetString(KeyNoteTemplate),
		TitleTemplate:     v.GetString(KeyTitleTemplate),
		DateFormat:        v.GetString(KeyDateFormat),
		SyncMode:          core.SyncMode(v.GetString(KeySyncMode)),
		NotesFilter:       v.GetString(KeyNotesFilter),
		AutoGenerateTitle: v.GetBool(KeyAutoGenerateTitle),
		SyncOnStartup:     v.GetBool(KeySyncOnStartup),
		SyncLinks:         v.GetBool(KeySyncLinks),
		LinksNoteTitle:    v.GetString(KeyLinksNoteTitle),
		SyncInterval:      v.GetDuration(KeySyncInterval),
		Supabase: Supabase{
			URL:     v.GetString(KeySupabaseURL),
			AnonKey: v.GetString(KeySupabaseAnonKey),
		},
		Auth: Auth{
			Email:        v.GetString(KeyAuthEmail),
			UserID:       v.GetString(KeyAuthUserID),
			LegacyID:     v.GetString(KeyAuthLegacyID),
			RefreshToken: v.GetString(KeyAuthRefreshToken),
		},
		EncryptionKey:    v.GetString(KeyEncryptionKey),
		IDBatchThreshold: v.GetInt(KeyIDBatchThreshold),
		v:                v,
		path:             path,
	}
	if raw := v.GetString(KeyLastSyncTime); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", KeyLastSyncTime, raw, err)
		}
		s.LastSyncTime = t
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file the settings persist to.
func (s *Settings) Path() string { return s.path }

// Validate checks the sync mode and the note template.
func (s *Settings) Validate() error {
	if _, err := core.ParseSyncMode(string(s.SyncMode)); err != nil {
		return err
	}
	if s.SyncInterval < 0 {
		return fmt.Errorf("invalid %s: must not be negative", KeySyncInterval)
	}
	if err := template.Validate(s.NoteTemplate); err != nil {
		return fmt.Errorf("invalid %s: %w", KeyNoteTemplate, err)
	}
	return nil
}

// EffectiveTemplate is the note template in use for the configured mode.
func (s *Settings) EffectiveTemplate() string {
	return s.TemplateFor(s.SyncMode)
}

// TemplateFor is the note template used when syncing in mode. Modes that
// push local notes need the default front-matter shape and ignore custom
// templates.
func (s *Settings) TemplateFor(mode core.SyncMode) string {
	if mode.PushesLocal() || s.NoteTemplate == "" {
		return template.DefaultNoteTemplate
	}
	return s.NoteTemplate
}

// SignedIn reports whether a tenant identity is stored.
func (s *Settings) SignedIn() bool {
	return s.Auth.UserID != "" || s.Auth.LegacyID != ""
}

// ClearAuth forgets the signed-in identity.
func (s *Settings) ClearAuth() {
	s.Auth = Auth{}
}

// Set assigns a setting by key, e.g. from the command line, and re-validates.
func (s *Settings) Set(key, value string) error {
	next := *s
	switch key {
	case KeyVault:
		next.Vault = value
	case KeyRootFolder:
		next.RootFolder = value
	case KeyAttachmentsFolder:
		next.AttachmentsFolder = value
	case KeyNoteTemplate:
		next.NoteTemplate = value
	case KeyTitleTemplate:
		next.TitleTemplate = value
	case KeyDateFormat:
		next.DateFormat = value
	case KeySyncMode:
		next.SyncMode = core.SyncMode(value)
	case KeyNotesFilter:
		next.NotesFilter = value
	case KeyLinksNoteTitle:
		next.LinksNoteTitle = value
	case KeySupabaseURL:
		next.Supabase.URL = value
	case KeySupabaseAnonKey:
		next.Supabase.AnonKey = value
	case KeyEncryptionKey:
		next.EncryptionKey = value
	case KeyAutoGenerateTitle, KeySyncOnStartup, KeySyncLinks:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		switch key {
		case KeyAutoGenerateTitle:
			next.AutoGenerateTitle = b
		case KeySyncOnStartup:
			next.SyncOnStartup = b
		default:
			next.SyncLinks = b
		}
	case KeySyncInterval:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		next.SyncInterval = d
	case KeyIDBatchThreshold:
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n <= 0 {
			return fmt.Errorf("invalid %s %q", key, value)
		}
		next.IDBatchThreshold = n
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// Save writes the settings back to their file.
func (s *Settings) Save() error {
	v := s.v
	v.Set(KeyVault, s.Vault)
	v.Set(KeyRootFolder, s.RootFolder)
	v.Set(KeyAttachmentsFolder, s.AttachmentsFolder)
	v.Set(KeyNoteTemplate, s.NoteTemplate)
	v.Set(KeyTitleTemplate, s.TitleTemplate)
	v.Set(KeyDateFormat, s.DateFormat)
	v.Set(KeySyncMode, string(s.SyncMode))
	v.Set(KeyNotesFilter, s.NotesFilter)
	v.Set(KeyAutoGenerateTitle, s.AutoGenerateTitle)
	v.Set(KeySyncOnStartup, s.SyncOnStartup)
	v.Set(KeySyncLinks, s.SyncLinks)
	v.Set(KeyLinksNoteTitle, s.LinksNoteTitle)
	v.Set(KeySyncInterval, s.SyncInterval.String())
	v.Set(KeySupabaseURL, s.Supabase.URL)
	v.Set(KeySupabaseAnonKey, s.Supabase.AnonKey)
	v.Set(KeyAuthEmail, s.Auth.Email)
	v.Set(KeyAuthUserID, s.Auth.UserID)
	v.Set(KeyAuthLegacyID, s.Auth.LegacyID)
	v.Set(KeyAuthRefreshToken, s.Auth.RefreshToken)
	v.Set(KeyEncryptionKey, s.EncryptionKey)
	v.Set(KeyIDBatchThreshold, s.IDBatchThreshold)
	if s.LastSyncTime.IsZero() {
		v.Set(KeyLastSyncTime, "")
	} else {
		v.Set(KeyLastSyncTime, s.LastSyncTime.UTC().Format(time.RFC3339Nano))
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", s.path, err)
	}
	// Credentials live here.
	return os.Chmod(s.path, 0600)
}
