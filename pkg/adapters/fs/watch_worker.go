package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/notesync/pkg/core"
)

const debounceDelay = 50 * time.Millisecond

// Watch implements core.FileStore. The returned channel is closed once ctx is
// done and pending events have drained.
func (v *Vault) Watch(ctx context.Context) (<-chan core.FileEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := v.recursiveAdd(watcher, v.Path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	w := newWatchWorker(v, watcher)

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		v.logger.Error("watcher stopped", "error", err)
	}))
	return w.events, nil
}

type watchWorker struct {
	vault     *Vault
	watcher   *fsnotify.Watcher
	events    chan core.FileEvent
	debouncer *debouncer

	// stop releases pending sends; closed guards events under mu.
	stop   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func newWatchWorker(v *Vault, watcher *fsnotify.Watcher) *watchWorker {
	return &watchWorker{
		vault:     v,
		watcher:   watcher,
		events:    make(chan core.FileEvent, 64),
		debouncer: newDebouncer(debounceDelay),
		stop:      make(chan struct{}),
	}
}

// deliver sends e unless the worker has shut down.
func (w *watchWorker) deliver(ctx context.Context, e core.FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.events <- e:
	case <-ctx.Done():
	case <-w.stop:
	}
}

// shutdown drops pending events and closes the output channel.
func (w *watchWorker) shutdown() {
	close(w.stop)
	w.debouncer.stopAndWait(5 * time.Second)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
}

func (v *Vault) recursiveAdd(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != v.Path && v.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	logger := w.vault.logger
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Error("watcher panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				logger.Error("watcher panic", "error", panicErr)
			}
			err = panicErr
		}
	}()
	defer w.shutdown()
	defer w.watcher.Close()

	return w.mainEventLoop(ctx)
}

func (w *watchWorker) mainEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.vault.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) {
	logger := w.vault.logger
	logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, TempFilePrefix) {
		return
	}
	rel, err := w.vault.rel(event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "../") {
		return
	}
	for _, part := range strings.Split(rel, "/") {
		if w.vault.skipDir(part) {
			return
		}
	}

	var op core.FileOp
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		op = core.FileDeleted
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.vault.recursiveAdd(w.watcher, event.Name); err != nil {
				logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return
		}
		op = core.FileModified
	case event.Has(fsnotify.Write):
		op = core.FileModified
	default:
		return
	}

	w.debouncer.add(core.FileEvent{Path: rel, Op: op}, func(e core.FileEvent) {
		w.deliver(ctx, e)
	})
}
