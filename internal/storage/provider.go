// Package storage reads and writes notes inside the vault directory.
package storage

import "github.com/starford/tasklink/internal/models"

// Provider is the vault file system seen by the sync services.
type Provider interface {
	// List returns metadata for every note under dir, relative to the vault.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the note at path.
	Read(path string) ([]byte, error)
	// Write replaces the note at path atomically.
	Write(path string, content []byte) error
}
