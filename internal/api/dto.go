package api

import (
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/tree"
	"github.com/starford/arbor/internal/treeservice"
)

// ResultResponse is the body of every mutating endpoint.
type ResultResponse struct {
	tree.Result
	Action *tree.Action `json:"action,omitempty"`
}

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest = treeservice.CreateInput

// RenameItemRequest is the request body for renaming an item.
type RenameItemRequest = treeservice.RenameInput

// MoveItemRequest is the request body for moving an item.
type MoveItemRequest = treeservice.MoveInput

// ContextMenuRequest anchors a context menu.
type ContextMenuRequest = treeservice.ContextMenuInput

// KeyRequest is one key press.
type KeyRequest = treeservice.KeyInput

// RowsResponse wraps the visible rows.
type RowsResponse struct {
	Rows []models.Row `json:"rows" validate:"required"`
}

// KeysResponse wraps the active key bindings.
type KeysResponse struct {
	Keys []treeservice.KeyHelp `json:"keys" validate:"required"`
}

// CheckResponse reports the invariant check of the cached tree.
type CheckResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SessionResponse is the current view state.
type SessionResponse = tree.Session
