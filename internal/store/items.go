package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/tree"
)

// Verify *DB satisfies the tree contracts at compile time.
var (
	_ tree.ItemStore      = (*DB)(nil)
	_ tree.ExpansionStore = (*DB)(nil)
)

// maxDepth bounds ancestor walks over rows that may be corrupted into cycles.
const maxDepth = 10000

func table(k models.Kind) string {
	if k == models.KindFolder {
		return "folders"
	}
	return "notes"
}

type itemRow struct {
	kind     models.Kind
	parentID string
	position int
}

// lookup finds id in either table.
func (db *DB) lookup(ctx context.Context, q querier, id string) (itemRow, error) {
	for _, k := range []models.Kind{models.KindFolder, models.KindNote} {
		r := itemRow{kind: k}
		err := db.queryRow(ctx, q, `SELECT parent_id, position FROM `+table(k)+` WHERE id = ?`, id).
			Scan(&r.parentID, &r.position)
		if err == nil {
			return r, nil
		}
		if err != sql.ErrNoRows {
			return itemRow{}, fmt.Errorf("store: lookup %s: %w", id, err)
		}
	}
	return itemRow{}, apperr.NotFound("item %q", id)
}

// requireFolder fails unless parentID is the root level or an existing folder.
func (db *DB) requireFolder(ctx context.Context, q querier, parentID string) error {
	if parentID == models.RootID {
		return nil
	}
	r, err := db.lookup(ctx, q, parentID)
	if err != nil {
		return err
	}
	if r.kind != models.KindFolder {
		return apperr.Invalid("parent %q is not a folder", parentID)
	}
	return nil
}

func (db *DB) nextPosition(ctx context.Context, q querier, parentID string) (int, error) {
	var pos int
	err := db.queryRow(ctx, q, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM (
			SELECT position FROM folders WHERE parent_id = ?
			UNION ALL
			SELECT position FROM notes WHERE parent_id = ?
		) siblings
	`, parentID, parentID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("store: next position: %w", err)
	}
	return pos, nil
}

// isWithin reports whether folder id is anc or one of its descendants.
func (db *DB) isWithin(ctx context.Context, q querier, id, anc string) (bool, error) {
	var hit int
	err := db.queryRow(ctx, q, `
		WITH RECURSIVE up(id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM folders WHERE id = ?
			UNION ALL
			SELECT f.id, f.parent_id, up.depth + 1
			FROM folders f JOIN up ON f.id = up.parent_id
			WHERE up.depth < ?
		)
		SELECT COUNT(*) FROM up WHERE id = ?
	`, id, maxDepth, anc).Scan(&hit)
	if err != nil {
		return false, fmt.Errorf("store: ancestry: %w", err)
	}
	return hit > 0, nil
}

// ListItems returns every folder and note row in sibling order.
func (db *DB) ListItems(ctx context.Context) ([]models.Record, []models.Record, error) {
	folders, err := db.listTable(ctx, "folders")
	if err != nil {
		return nil, nil, err
	}
	notes, err := db.listTable(ctx, "notes")
	if err != nil {
		return nil, nil, err
	}
	return folders, notes, nil
}

func (db *DB) listTable(ctx context.Context, name string) ([]models.Record, error) {
	rows, err := db.query(ctx, db.conn, `SELECT id, parent_id, title, position FROM `+name+` ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", name, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Name, &r.Position); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateItem inserts a new item as the last child of parentID.
func (db *DB) CreateItem(ctx context.Context, kind models.Kind, title, parentID string) (string, error) {
	title = strings.TrimSpace(title)
	if !kind.Valid() {
		return "", apperr.Invalid("unknown item kind %q", kind)
	}
	if title == "" {
		return "", apperr.Invalid("title is required")
	}

	id := uuid.NewString()
	err := db.writeTx(ctx, func(tx *sql.Tx) error {
		if err := db.requireFolder(ctx, tx, parentID); err != nil {
			return err
		}
		pos, err := db.nextPosition(ctx, tx, parentID)
		if err != nil {
			return err
		}
		_, err = db.exec(ctx, tx, `INSERT INTO `+table(kind)+` (id, parent_id, title, position) VALUES (?, ?, ?, ?)`,
			id, parentID, title, pos)
		if err != nil {
			return fmt.Errorf("store: insert %s: %w", kind, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// MoveItem reparents id under targetParentID, right after afterID when it
// names a child of targetParentID, otherwise as the last child.
func (db *DB) MoveItem(ctx context.Context, id, targetParentID, afterID string) error {
	return db.writeTx(ctx, func(tx *sql.Tx) error {
		return db.move(ctx, tx, id, targetParentID, afterID)
	})
}

// MoveItemToRoot makes id a root-level item.
func (db *DB) MoveItemToRoot(ctx context.Context, id string) error {
	return db.MoveItem(ctx, id, models.RootID, "")
}

func (db *DB) move(ctx context.Context, tx *sql.Tx, id, parentID, afterID string) error {
	item, err := db.lookup(ctx, tx, id)
	if err != nil {
		return err
	}
	if id == parentID {
		return apperr.ErrSelfMove
	}
	if err := db.requireFolder(ctx, tx, parentID); err != nil {
		return err
	}
	if item.kind == models.KindFolder && parentID != models.RootID {
		cyclic, err := db.isWithin(ctx, tx, parentID, id)
		if err != nil {
			return err
		}
		if cyclic {
			return apperr.ErrCyclicMove
		}
	}

	pos := -1
	if afterID != "" && afterID != id {
		after, err := db.lookup(ctx, tx, afterID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err == nil && after.parentID == parentID {
			pos = after.position + 1
			for _, t := range []string{"folders", "notes"} {
				_, err := db.exec(ctx, tx, `UPDATE `+t+` SET position = position + 1 WHERE parent_id = ? AND position >= ?`,
					parentID, pos)
				if err != nil {
					return fmt.Errorf("store: shift siblings: %w", err)
				}
			}
		}
	}
	if pos < 0 {
		if pos, err = db.nextPosition(ctx, tx, parentID); err != nil {
			return err
		}
	}

	_, err = db.exec(ctx, tx, `UPDATE `+table(item.kind)+` SET parent_id = ?, position = ? WHERE id = ?`, parentID, pos, id)
	if err != nil {
		return fmt.Errorf("store: move %s: %w", id, err)
	}
	return nil
}

// PromoteItem moves id to the end of its grandparent and returns the
// grandparent id. Notes cannot be promoted to the root level.
func (db *DB) PromoteItem(ctx context.Context, id string) (string, error) {
	var target string
	err := db.writeTx(ctx, func(tx *sql.Tx) error {
		item, err := db.lookup(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.parentID == models.RootID {
			return apperr.ErrNoAncestorToPromoteTo
		}
		parent, err := db.lookup(ctx, tx, item.parentID)
		if err != nil {
			return err
		}
		if item.kind == models.KindNote && parent.parentID == models.RootID {
			return apperr.ErrNoAncestorToPromoteTo
		}
		target = parent.parentID
		return db.move(ctx, tx, id, target, "")
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

// DeleteItem removes id. Deleting a folder removes every folder and note
// beneath it along with their expansion flags.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	return db.writeTx(ctx, func(tx *sql.Tx) error {
		item, err := db.lookup(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.kind == models.KindNote {
			if _, err := db.exec(ctx, tx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
				return fmt.Errorf("store: delete note: %w", err)
			}
			return nil
		}

		const subtree = `WITH RECURSIVE sub(id) AS (
			SELECT id FROM folders WHERE id = ?
			UNION
			SELECT f.id FROM folders f JOIN sub ON f.parent_id = sub.id
		) `
		for _, stmt := range []string{
			subtree + `DELETE FROM expansion WHERE id IN (SELECT id FROM sub)`,
			subtree + `DELETE FROM notes WHERE parent_id IN (SELECT id FROM sub)`,
			subtree + `DELETE FROM folders WHERE id IN (SELECT id FROM sub)`,
		} {
			if _, err := db.exec(ctx, tx, stmt, id); err != nil {
				return fmt.Errorf("store: delete subtree: %w", err)
			}
		}
		return nil
	})
}

// RenameItem updates the title of id.
func (db *DB) RenameItem(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apperr.Invalid("title is required")
	}
	return db.writeTx(ctx, func(tx *sql.Tx) error {
		item, err := db.lookup(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := db.exec(ctx, tx, `UPDATE `+table(item.kind)+` SET title = ? WHERE id = ?`, title, id); err != nil {
			return fmt.Errorf("store: rename %s: %w", id, err)
		}
		return nil
	})
}
