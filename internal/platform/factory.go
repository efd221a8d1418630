package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/notesync/internal/config"
	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/adapters/supabase"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/syncer"
	"github.com/aretw0/notesync/pkg/template"
	"github.com/aretw0/notesync/pkg/title"
)

// App wires settings to the stores and the syncer.
type App struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Files    core.FileStore
	Local    *fs.Store
	Remote   *supabase.Store
	Backend  supabase.Backend
	Syncer   *syncer.Syncer
}

// Open builds an App from settings.
//
//	app, err := platform.Open(settings, platform.WithLogger(logger))
func Open(settings *config.Settings, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	files := o.files
	if files == nil {
		useTemp := o.forceTemp || (IsDevRun() && o.devSafety)
		path := ResolveVaultPath(settings.Vault, useTemp)
		if useTemp {
			logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", settings.Vault, "resolved_path", path)
		}
		vault := fs.NewVault(fs.VaultConfig{Path: path, MustExist: !useTemp, Logger: logger})
		if err := vault.Initialize(context.Background()); err != nil {
			return nil, err
		}
		files = vault
	}

	backend := o.backend
	if backend == nil {
		client, err := supabase.NewClient(supabase.ClientConfig{
			URL:     settings.Supabase.URL,
			AnonKey: settings.Supabase.AnonKey,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		backend = client
	}

	mode := settings.SyncMode
	if o.mode != "" {
		mode = o.mode
	}

	engine := template.New(settings.DateFormat)
	localCfg := fs.Config{
		Folder:            settings.RootFolder,
		AttachmentsFolder: settings.AttachmentsFolder,
		NoteTemplate:      settings.TemplateFor(mode),
		Title:             title.Settings{AutoGenerate: settings.AutoGenerateTitle, Template: settings.TitleTemplate},
		Engine:            engine,
		Logger:            logger,
	}
	if settings.AttachmentsFolder != "" && settings.Supabase.URL != "" {
		localCfg.Attachments = supabase.NewAttachments(backend, settings.Supabase.URL)
	}
	local := fs.NewStore(files, localCfg)

	remote := supabase.NewStore(backend, supabase.Config{
		Identity:         supabase.Identity{UserID: settings.Auth.UserID, LegacyID: settings.Auth.LegacyID},
		EncryptionKey:    settings.EncryptionKey,
		IDBatchThreshold: settings.IDBatchThreshold,
		Logger:           logger,
	})

	syncOpts := []syncer.Option{
		syncer.WithMode(mode),
		syncer.WithLastSync(settings.LastSyncTime),
		syncer.WithLastSyncHook(func(t time.Time) error {
			settings.LastSyncTime = t
			return settings.Save()
		}),
		syncer.WithSyncLinks(settings.SyncLinks),
		syncer.WithLinksTitle(settings.LinksNoteTitle),
		syncer.WithFilter(core.Filter{Text: settings.NotesFilter}),
		syncer.WithLogger(logger),
	}
	if o.events != nil {
		syncOpts = append(syncOpts, syncer.WithEvents(o.events))
	}

	return &App{
		Settings: settings,
		Logger:   logger,
		Files:    files,
		Local:    local,
		Remote:   remote,
		Backend:  backend,
		Syncer:   syncer.New(local, remote, syncOpts...),
	}, nil
}
