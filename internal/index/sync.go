package index

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/tasklink/internal/apperr"
	"github.com/starford/tasklink/internal/checksum"
	"github.com/starford/tasklink/internal/parser"
	"github.com/starford/tasklink/internal/storage"
)

// Sync walks the vault and brings the index up to date: changed notes are
// re-parsed and notes gone from disk are dropped.
func Sync(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger) error {
	indexed, removed, err := reconcile(ctx, db, store, logger, nil)
	if err != nil {
		return err
	}
	logger.Info("sync: done", slog.Int("indexed", indexed), slog.Int("removed", removed))
	return nil
}

// reconcile compares every note on disk with the index by checksum.
func reconcile(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, notify EventCallback) (indexed, removed int, err error) {
	metas, err := store.List("")
	if err != nil {
		return 0, 0, err
	}
	checksums, err := db.AllChecksums(ctx)
	if err != nil {
		return 0, 0, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		old, known := checksums[m.Path]
		if old == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(ctx, db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		indexed++
		notify.call(changeKind(known), m.Path)
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(ctx, p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removed++
		notify.call(KindDeleted, p)
	}
	return indexed, removed, nil
}

// refresh re-indexes one note if its content differs from the index and
// reports what changed. A missing file is dropped from the index.
func refresh(ctx context.Context, db *DB, store storage.Provider, path string) (kind string, err error) {
	old, err := db.GetChecksum(ctx, path)
	if err != nil {
		return "", err
	}
	data, err := store.Read(path)
	if errors.Is(err, apperr.ErrNotFound) {
		if old == "" {
			return "", nil
		}
		return KindDeleted, db.DeleteNote(ctx, path)
	}
	if err != nil {
		return "", err
	}
	if checksum.Sum(data) == old {
		return "", nil
	}
	if err := IndexFile(ctx, db, path, data); err != nil {
		return "", err
	}
	return changeKind(old != ""), nil
}

func changeKind(known bool) string {
	if known {
		return KindUpdated
	}
	return KindCreated
}

// IndexFile parses data and stores its title and block refs.
func IndexFile(ctx context.Context, db NoteIndex, path string, data []byte) error {
	note := parser.ParseNote(path, data)
	row := NoteRow{
		Path:     path,
		Title:    note.Title,
		Checksum: checksum.Sum(data),
	}
	return db.UpsertNote(ctx, row, note.Refs)
}
