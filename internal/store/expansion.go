package store

import (
	"context"
	"fmt"
)

// GetExpansion returns every persisted expand flag.
func (db *DB) GetExpansion(ctx context.Context) (map[string]bool, error) {
	rows, err := db.query(ctx, db.conn, `SELECT id, expanded FROM expansion`)
	if err != nil {
		return nil, fmt.Errorf("store: get expansion: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		var expanded bool
		if err := rows.Scan(&id, &expanded); err != nil {
			return nil, fmt.Errorf("store: scan expansion: %w", err)
		}
		out[id] = expanded
	}
	return out, rows.Err()
}

// SetExpansion upserts the given flags. Expansion is view state, so it does
// not bump the item revision.
func (db *DB) SetExpansion(ctx context.Context, flags map[string]bool) error {
	if len(flags) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, db.rebind(`
		INSERT INTO expansion (id, expanded) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET expanded = excluded.expanded
	`))
	if err != nil {
		return fmt.Errorf("store: prepare expansion upsert: %w", err)
	}
	defer stmt.Close()
	for id, expanded := range flags {
		if _, err := stmt.ExecContext(ctx, id, expanded); err != nil {
			return fmt.Errorf("store: set expansion %s: %w", id, err)
		}
	}
	return tx.Commit()
}
