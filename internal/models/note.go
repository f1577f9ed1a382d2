package models

import "time"

// NoteMetadata is a lightweight description of a vault note.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BlockRef records where a block link appears in the vault.
type BlockRef struct {
	Token string `json:"token"`
	Path  string `json:"path"`
	Line  int    `json:"line"`
	Title string `json:"title"`
}
