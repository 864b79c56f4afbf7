package treeservice

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// maxNameLength caps item titles.
const maxNameLength = 200

// CreateInput describes a new item.
type CreateInput struct {
	ParentID string      `json:"parent_id"`
	Name     string      `json:"name"`
	Kind     models.Kind `json:"kind"`
}

// Validate validates the create input. Names are checked after trimming.
func (in CreateInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, maxNameLength)),
		validation.Field(&in.Kind, validation.Required, validation.In(models.KindFolder, models.KindNote)),
	)
}

// RenameInput carries a new title.
type RenameInput struct {
	Name string `json:"name"`
}

// Validate validates the rename input.
func (in RenameInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, maxNameLength)),
	)
}

// MoveInput names the drop target. With ToRoot set TargetID is ignored.
type MoveInput struct {
	TargetID string `json:"target_id"`
	ToRoot   bool   `json:"to_root"`
}

// Validate validates the move input.
func (in MoveInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.TargetID, validation.When(!in.ToRoot, validation.Required)),
	)
}

// ContextMenuInput anchors a context menu.
type ContextMenuInput struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Validate validates the menu anchor.
func (in ContextMenuInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.X, validation.Min(0)),
		validation.Field(&in.Y, validation.Min(0)),
	)
}

// KeyInput is one key press. HasFocus, when set, updates whether the tree
// holds input focus before the key is handled.
type KeyInput struct {
	Key      string `json:"key"`
	HasFocus *bool  `json:"has_focus,omitempty"`
}

// Validate validates the key input.
func (in KeyInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Key, validation.Required),
	)
}

// invalid classifies an input validation failure.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", apperr.ErrInvalidOperation, err)
}
