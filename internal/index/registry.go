package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/tasklink/internal/registry"
)

// LoadRegistry implements registry.Persister.
func (db *DB) LoadRegistry(ctx context.Context) (registry.Snapshot, error) {
	snap := registry.Snapshot{Lookup: map[string]string{}}

	err := db.conn.QueryRowContext(ctx, `SELECT value FROM registry_meta WHERE key = ?`, counterKey).Scan(&snap.Counter)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return registry.Snapshot{}, fmt.Errorf("index: load counter: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT token, remote_id FROM block_links`)
	if err != nil {
		return registry.Snapshot{}, fmt.Errorf("index: load links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var token, id string
		if err := rows.Scan(&token, &id); err != nil {
			return registry.Snapshot{}, err
		}
		snap.Lookup[token] = id
	}
	return snap, rows.Err()
}

// RecordMint implements registry.Persister. The mapping and the counter
// are written in one transaction.
func (db *DB) RecordMint(ctx context.Context, token, remoteID string, counter int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `INSERT INTO block_links (token, remote_id) VALUES (?, ?)`, token, remoteID); err != nil {
		return fmt.Errorf("index: insert link %s: %w", token, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO registry_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = max(value, excluded.value)
	`, counterKey, counter)
	if err != nil {
		return fmt.Errorf("index: store counter: %w", err)
	}
	return tx.Commit()
}

// ImportRegistry copies a snapshot, typically read from the settings file,
// into the database. Existing tokens are left alone.
func (db *DB) ImportRegistry(ctx context.Context, snap registry.Snapshot) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	imported := 0
	for token, id := range snap.Lookup {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO block_links (token, remote_id) VALUES (?, ?)`, token, id)
		if err != nil {
			return 0, fmt.Errorf("index: import %s: %w", token, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO registry_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = max(value, excluded.value)
	`, counterKey, snap.Counter)
	if err != nil {
		return 0, fmt.Errorf("index: import counter: %w", err)
	}
	return imported, tx.Commit()
}
