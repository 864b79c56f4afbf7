package tree

import (
	"context"
	"slices"

	"github.com/charmbracelet/bubbles/key"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// ActionKind names a follow-up the presentation layer must carry out.
type ActionKind string

// Follow-up actions.
const (
	ActionNone          ActionKind = ""
	ActionOpenNote      ActionKind = "open_note"
	ActionContextMenu   ActionKind = "context_menu"
	ActionConfirmDelete ActionKind = "confirm_delete"
)

// Action asks the presentation layer to do something the tree cannot do
// itself, such as opening a note or confirming a delete.
type Action struct {
	Kind ActionKind `json:"kind,omitempty"`
	ID   string     `json:"id,omitempty"`
	X    int        `json:"x,omitempty"`
	Y    int        `json:"y,omitempty"`
}

// VisibleIDs returns the ids reachable from root through expanded folders,
// in pre-order. It is recomputed on every call.
func (e *Engine) VisibleIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.arena.visible()
}

// First returns the first visible id, or "" when nothing is visible.
func (e *Engine) First() string {
	v := e.VisibleIDs()
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Last returns the last visible id, or "" when nothing is visible.
func (e *Engine) Last() string {
	v := e.VisibleIDs()
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

// Rows returns the visible nodes with their render flags.
func (e *Engine) Rows() []models.Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	visible := e.arena.visible()
	rows := make([]models.Row, 0, len(visible))
	for _, id := range visible {
		n := e.arena.nodes[id]
		rows = append(rows, models.Row{
			ID:       id,
			Name:     n.Name,
			Kind:     n.Kind,
			Depth:    n.Depth,
			Expanded: n.IsFolder() && n.Expanded,
			Focused:  e.session.Focused == id,
			Cut:      e.session.Cut == id,
		})
	}
	return rows
}

// SetInputFocus records whether the tree currently receives key presses.
func (e *Engine) SetInputFocus(has bool) {
	e.mu.Lock()
	e.session.InputFocus = has
	e.mu.Unlock()
}

// Focus moves focus to id.
func (e *Engine) Focus(id string) Result {
	e.mu.Lock()
	if _, ok := e.arena.nodes[id]; !ok || id == models.RootID {
		e.mu.Unlock()
		return failed(apperr.NotFound("item %q", id))
	}
	e.session.Focused = id
	e.session.Menu = nil
	e.mu.Unlock()

	e.notify(OpFocus, id)
	return succeeded(id, "focused")
}

// OnClick focuses id and gives the tree input focus. Clicking a folder
// toggles it; clicking a note asks the caller to open it.
func (e *Engine) OnClick(ctx context.Context, id string) (Action, Result) {
	res := e.Focus(id)
	if !res.Success {
		return Action{}, res
	}
	e.SetInputFocus(true)
	n, _ := e.Get(id)
	if n.IsFolder() {
		return Action{}, e.ToggleExpanded(ctx, id)
	}
	return Action{Kind: ActionOpenNote, ID: id}, res
}

// OnContextMenu focuses id and opens a context menu anchored at x, y.
func (e *Engine) OnContextMenu(id string, x, y int) (Action, Result) {
	res := e.Focus(id)
	if !res.Success {
		return Action{}, res
	}
	e.mu.Lock()
	e.session.Menu = &ContextMenu{ID: id, X: x, Y: y}
	e.mu.Unlock()
	return Action{Kind: ActionContextMenu, ID: id, X: x, Y: y}, res
}

// CloseContextMenu dismisses the open context menu.
func (e *Engine) CloseContextMenu() {
	e.mu.Lock()
	e.session.Menu = nil
	e.mu.Unlock()
}

// OnKeyDown interprets a key press over the visible list. Keys are ignored
// while the tree lacks input focus.
func (e *Engine) OnKeyDown(ctx context.Context, k Key) (Action, Result) {
	e.mu.RLock()
	hasFocus := e.session.InputFocus
	focused := e.session.Focused
	node, hasNode := e.arena.Get(focused)
	hasNode = hasNode && focused != models.RootID
	e.mu.RUnlock()

	if !hasFocus {
		return Action{}, succeeded("", "ignored: tree does not have input focus")
	}

	switch {
	case key.Matches(k, e.keys.Up):
		return Action{}, e.step(-1)
	case key.Matches(k, e.keys.Down):
		return Action{}, e.step(1)
	case key.Matches(k, e.keys.Home):
		return Action{}, e.focusEdge(e.First())
	case key.Matches(k, e.keys.End):
		return Action{}, e.focusEdge(e.Last())
	case key.Matches(k, e.keys.Paste):
		return Action{}, e.Paste(ctx)
	}

	if !hasNode {
		return Action{}, failed(apperr.Invalid("nothing is focused"))
	}

	switch {
	case key.Matches(k, e.keys.Right):
		if node.IsFolder() && !node.Expanded {
			return Action{}, e.SetExpanded(ctx, focused, true)
		}
		return Action{}, succeeded(focused, "nothing to expand")
	case key.Matches(k, e.keys.Left):
		if node.IsFolder() && node.Expanded {
			return Action{}, e.SetExpanded(ctx, focused, false)
		}
		if node.ParentID != models.RootID {
			return Action{}, e.Focus(node.ParentID)
		}
		return Action{}, succeeded(focused, "already at top level")
	case key.Matches(k, e.keys.Toggle):
		if node.IsFolder() {
			return Action{}, e.ToggleExpanded(ctx, focused)
		}
		return Action{Kind: ActionOpenNote, ID: focused}, succeeded(focused, "open note")
	case key.Matches(k, e.keys.Cut):
		return Action{}, e.Cut(focused)
	case key.Matches(k, e.keys.MoveToRoot):
		return Action{}, e.Move(ctx, focused, "", true)
	case key.Matches(k, e.keys.ContextMenu):
		x, y := e.anchor(focused)
		return e.OnContextMenu(focused, x, y)
	case key.Matches(k, e.keys.Delete):
		return Action{Kind: ActionConfirmDelete, ID: focused}, succeeded(focused, "confirm delete")
	}
	return Action{}, succeeded(focused, "ignored: unbound key %q", string(k))
}

// step moves focus delta rows through the visible list. With nothing
// focused it lands on the first row. It is a no-op at either end.
func (e *Engine) step(delta int) Result {
	e.mu.Lock()
	visible := e.arena.visible()
	if len(visible) == 0 {
		e.mu.Unlock()
		return succeeded("", "nothing visible")
	}
	idx := slices.Index(visible, e.session.Focused)
	next := idx + delta
	switch {
	case idx < 0:
		next = 0
	case next < 0 || next >= len(visible):
		e.mu.Unlock()
		return succeeded(e.session.Focused, "at edge")
	}
	e.session.Focused = visible[next]
	e.session.Menu = nil
	e.mu.Unlock()

	e.notify(OpFocus, visible[next])
	return succeeded(visible[next], "focused")
}

func (e *Engine) focusEdge(id string) Result {
	if id == "" {
		return succeeded("", "nothing visible")
	}
	return e.Focus(id)
}

// anchor returns the row coordinates of id: x is its depth, y its index in
// the visible list.
func (e *Engine) anchor(id string) (int, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.arena.nodes[id]
	if !ok {
		return 0, -1
	}
	return n.Depth, slices.Index(e.arena.visible(), id)
}
