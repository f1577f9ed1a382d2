package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tasklink/internal/storage"
)

const (
	// settleDelay coalesces the burst of writes an editor produces on save.
	settleDelay = 150 * time.Millisecond
	rescanDelay = 300 * time.Millisecond
)

// Event kinds passed to EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, path string)

func (cb EventCallback) call(kind, path string) {
	if cb != nil {
		cb(kind, path)
	}
}

// watcher turns file system events into index refreshes. Events only mark
// notes dirty; dirty notes are refreshed once writes have settled, and a
// note whose checksum matches the index is skipped. The last point keeps
// tasklink's own write-backs, which are indexed on write, from producing a
// second change event.
type watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	notify EventCallback

	fsw   *fsnotify.Watcher
	dirty map[string]struct{}

	settle *time.Timer
	rescan *time.Timer
}

// Watch keeps the index in step with the vault until ctx is cancelled.
// Directories created at runtime are watched too; renames and new
// directories trigger a full reconciliation pass.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addDirsRecursive(fsw, vaultRoot); err != nil {
		return err
	}

	w := &watcher{
		db:     db,
		store:  store,
		root:   vaultRoot,
		logger: logger,
		notify: cb,
		fsw:    fsw,
		dirty:  make(map[string]struct{}),
		settle: stoppedTimer(),
		rescan: stoppedTimer(),
	}
	defer w.settle.Stop()
	defer w.rescan.Stop()

	logger.Info("watcher: started", slog.String("root", vaultRoot))
	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case <-w.settle.C:
			w.flush(ctx)

		case <-w.rescan.C:
			// Pending per-note work is covered by the full pass.
			clear(w.dirty)
			if _, _, err := reconcile(ctx, db, store, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	if hidden(filepath.Base(ev.Name)) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addDirsRecursive(w.fsw, ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			// Files may land in the directory before it is watched.
			w.rescan.Reset(rescanDelay)
			return
		}
	}

	if !strings.HasSuffix(ev.Name, storage.NoteExt) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	w.dirty[filepath.ToSlash(rel)] = struct{}{}
	w.settle.Reset(settleDelay)

	// Rename fires on the old path only; a move out of a watched subtree
	// never reports the new one.
	if ev.Op&fsnotify.Rename != 0 {
		w.rescan.Reset(rescanDelay)
	}
}

func (w *watcher) flush(ctx context.Context) {
	for path := range w.dirty {
		delete(w.dirty, path)
		kind, err := refresh(ctx, w.db, w.store, path)
		if err != nil {
			w.logger.Warn("watcher: refresh failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if kind == "" {
			continue
		}
		w.logger.Debug("watcher: indexed", slog.String("path", path), slog.String("op", kind))
		w.notify.call(kind, path)
	}
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
