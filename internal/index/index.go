package index

import (
	"context"

	"github.com/starford/tasklink/internal/models"
	"github.com/starford/tasklink/internal/registry"
)

// NoteIndex is the read/write surface the services use. Consumers depend on
// it rather than on *DB.
type NoteIndex interface {
	UpsertNote(ctx context.Context, n NoteRow, refs []models.BlockRef) error
	DeleteNote(ctx context.Context, path string) error
	GetChecksum(ctx context.Context, path string) (string, error)
	AllChecksums(ctx context.Context) (map[string]string, error)
	BlockRefs(ctx context.Context, token string) ([]models.BlockRef, error)
	SearchRefs(ctx context.Context, query string, limit int) ([]models.BlockRef, error)
	DanglingRefs(ctx context.Context) ([]models.BlockRef, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

var (
	_ NoteIndex          = (*DB)(nil)
	_ registry.Persister = (*DB)(nil)
)
