// Package tree holds the in-memory item tree: the arena, the builder that
// rebuilds it from flat rows, the mutation engine that keeps it in step with
// the item store, and the navigation index over its visible part.
package tree

import (
	"context"
	"fmt"

	"github.com/starford/arbor/internal/models"
)

// ItemStore is the authoritative persisted relation of folders and notes.
// Every call is a single round trip; the engine applies local edits only
// after it returns nil.
type ItemStore interface {
	// ListItems returns every folder row and every note row.
	ListItems(ctx context.Context) (folders, notes []models.Record, err error)
	// CreateItem persists a new item and returns its id.
	CreateItem(ctx context.Context, kind models.Kind, title, parentID string) (string, error)
	// MoveItem reparents id under targetParentID. When afterID is set the item
	// is ordered right after that sibling, otherwise it becomes the last child.
	MoveItem(ctx context.Context, id, targetParentID, afterID string) error
	// MoveItemToRoot makes id a root-level item.
	MoveItemToRoot(ctx context.Context, id string) error
	// PromoteItem moves id one level up and returns its new parent id.
	PromoteItem(ctx context.Context, id string) (string, error)
	// DeleteItem removes id and, for folders, everything beneath it.
	DeleteItem(ctx context.Context, id string) error
	// RenameItem updates the title of id.
	RenameItem(ctx context.Context, id, title string) error
}

// ExpansionStore persists per-folder expand/collapse flags.
type ExpansionStore interface {
	GetExpansion(ctx context.Context) (map[string]bool, error)
	// SetExpansion merges the given flags into the persisted set.
	SetExpansion(ctx context.Context, flags map[string]bool) error
}

// Result is the outcome of one tree operation as reported to the UI layer.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// ID names the node the operation produced or acted on.
	ID string `json:"id,omitempty"`
	// Err wraps an apperr kind when Success is false.
	Err error `json:"-"`
}

func succeeded(id, format string, args ...any) Result {
	return Result{Success: true, ID: id, Message: fmt.Sprintf(format, args...)}
}

func failed(err error) Result {
	return Result{Success: false, Message: err.Error(), Err: err}
}
