package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/notesync/pkg/core"
)

// VaultConfig holds the configuration for an on-disk vault.
type VaultConfig struct {
	Path      string
	MustExist bool
	Logger    *slog.Logger
	// SkipDirs are directory names never listed or watched (e.g. ".obsidian").
	SkipDirs []string
}

// Vault implements core.FileStore on the local filesystem.
type Vault struct {
	Path   string
	config VaultConfig
	logger *slog.Logger
}

// DefaultSkipDirs are hidden tool directories found in typical vaults.
var DefaultSkipDirs = []string{".git", ".obsidian", ".trash"}

// NewVault creates a vault rooted at config.Path.
func NewVault(config VaultConfig) *Vault {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.SkipDirs == nil {
		config.SkipDirs = DefaultSkipDirs
	}
	return &Vault{Path: config.Path, config: config, logger: config.Logger}
}

// Initialize creates the vault directory unless MustExist is set.
func (v *Vault) Initialize(ctx context.Context) error {
	if v.config.MustExist {
		info, err := os.Stat(v.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("vault path does not exist: %s", v.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", v.Path)
		}
		return nil
	}
	if err := os.MkdirAll(v.Path, 0755); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}
	return nil
}

func (v *Vault) abs(p string) string {
	return filepath.Join(v.Path, filepath.FromSlash(p))
}

func (v *Vault) rel(abs string) (string, error) {
	r, err := filepath.Rel(v.Path, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(r), nil
}

func (v *Vault) skipDir(name string) bool {
	for _, d := range v.config.SkipDirs {
		if d == name {
			return true
		}
	}
	return false
}

// List implements core.FileStore.
func (v *Vault) List(ctx context.Context) ([]core.FileInfo, error) {
	var files []core.FileInfo
	err := filepath.WalkDir(v.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != v.Path && v.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), TempFilePrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Removed between readdir and stat.
			return nil
		}
		rel, err := v.rel(p)
		if err != nil {
			return err
		}
		files = append(files, core.FileInfo{Path: rel, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list vault: %w", err)
	}
	return files, nil
}

// Read implements core.FileStore.
func (v *Vault) Read(ctx context.Context, p string) (string, error) {
	b, err := os.ReadFile(v.abs(p))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write implements core.FileStore.
func (v *Vault) Write(ctx context.Context, p, text string) error {
	return v.WriteBinary(ctx, p, []byte(text))
}

// WriteBinary implements core.FileStore.
func (v *Vault) WriteBinary(ctx context.Context, p string, data []byte) error {
	target := v.abs(p)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	return writeFileAtomic(target, data, 0644)
}

// ErrExists is returned by Rename when the target is taken.
var ErrExists = errors.New("destination file already exists")

// Rename implements core.FileStore. It refuses to overwrite an existing file.
func (v *Vault) Rename(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	dst := v.abs(to)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(v.abs(from), dst)
}

// Remove implements core.FileStore. Missing files are not an error.
func (v *Vault) Remove(ctx context.Context, p string) error {
	if err := os.RemoveAll(v.abs(p)); err != nil {
		return err
	}
	return nil
}

// Exists implements core.FileStore.
func (v *Vault) Exists(ctx context.Context, p string) (bool, error) {
	_, err := os.Stat(v.abs(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// MkdirAll implements core.FileStore.
func (v *Vault) MkdirAll(ctx context.Context, p string) error {
	return os.MkdirAll(v.abs(p), 0755)
}

// Stat implements core.FileStore.
func (v *Vault) Stat(ctx context.Context, p string) (core.FileInfo, error) {
	info, err := os.Stat(v.abs(p))
	if err != nil {
		return core.FileInfo{}, err
	}
	return core.FileInfo{Path: p, ModTime: info.ModTime()}, nil
}

var _ core.FileStore = (*Vault)(nil)
