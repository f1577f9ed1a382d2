package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/tasklink/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	UpdatedAt time.Time
}

// Stats summarizes the index.
type Stats struct {
	Notes     int `json:"notes"`
	BlockRefs int `json:"block_refs"`
	Tokens    int `json:"tokens"`
}

// UpsertNote replaces a note row and all of its block refs in one
// transaction.
func (db *DB) UpsertNote(ctx context.Context, n NoteRow, refs []models.BlockRef) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (path, title, checksum, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM block_refs WHERE path = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO block_refs (token, path, line, title) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.ExecContext(ctx, r.Token, n.Path, r.Line, r.Title); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note and its block refs. Registry rows are kept:
// a token stays valid after the line that carried it disappears.
func (db *DB) DeleteNote(ctx context.Context, path string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM block_refs WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or "" if unknown.
func (db *DB) GetChecksum(ctx context.Context, path string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path -> checksum for every indexed note.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// BlockRefs returns every place token appears, ordered by path and line.
func (db *DB) BlockRefs(ctx context.Context, token string) ([]models.BlockRef, error) {
	return db.queryRefs(ctx, `
		SELECT token, path, line, title FROM block_refs
		WHERE token = ? ORDER BY path, line`, token)
}

// SearchRefs finds block refs whose title contains query, case-insensitive.
func (db *DB) SearchRefs(ctx context.Context, query string, limit int) ([]models.BlockRef, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return db.queryRefs(ctx, `
		SELECT token, path, line, title FROM block_refs
		WHERE lower(title) LIKE ? ESCAPE '\'
		ORDER BY path, line LIMIT ?`, pattern, limit)
}

// DanglingRefs returns block refs whose token is not in the registry.
func (db *DB) DanglingRefs(ctx context.Context) ([]models.BlockRef, error) {
	return db.queryRefs(ctx, `
		SELECT r.token, r.path, r.line, r.title FROM block_refs r
		LEFT JOIN block_links l ON l.token = r.token
		WHERE l.token IS NULL
		ORDER BY r.path, r.line`)
}

// Stats counts notes, refs and registered tokens.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM notes),
			(SELECT count(*) FROM block_refs),
			(SELECT count(*) FROM block_links)`).Scan(&s.Notes, &s.BlockRefs, &s.Tokens)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	return s, nil
}

func (db *DB) queryRefs(ctx context.Context, query string, args ...any) ([]models.BlockRef, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query refs: %w", err)
	}
	defer rows.Close()

	var out []models.BlockRef
	for rows.Next() {
		var r models.BlockRef
		if err := rows.Scan(&r.Token, &r.Path, &r.Line, &r.Title); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
