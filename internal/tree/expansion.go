package tree

import (
	"context"
	"log/slog"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// persistExpansion writes flags to the expansion store. Expansion is view
// state, so a failed write is logged and the local flags stand.
func (e *Engine) persistExpansion(ctx context.Context, flags map[string]bool) {
	if e.expansion == nil || len(flags) == 0 {
		return
	}
	if err := e.expansion.SetExpansion(storeCtx(ctx), flags); err != nil {
		e.logger.Warn("tree: persist expansion failed", slog.String("error", err.Error()))
	}
}

// SetExpanded sets the expand flag of folder id and persists it.
func (e *Engine) SetExpanded(ctx context.Context, id string, expanded bool) Result {
	e.mu.Lock()
	n, ok := e.arena.nodes[id]
	if !ok || id == models.RootID {
		e.mu.Unlock()
		return failed(apperr.NotFound("item %q", id))
	}
	if !n.IsFolder() {
		e.mu.Unlock()
		return failed(apperr.Invalid("%q is not a folder", id))
	}
	changed := n.Expanded != expanded
	n.Expanded = expanded
	e.mu.Unlock()

	if changed {
		e.persistExpansion(ctx, map[string]bool{id: expanded})
		e.notify(OpExpansion, id)
	}
	if expanded {
		return succeeded(id, "expanded")
	}
	return succeeded(id, "collapsed")
}

// ToggleExpanded flips the expand flag of folder id.
func (e *Engine) ToggleExpanded(ctx context.Context, id string) Result {
	e.mu.RLock()
	n, ok := e.arena.nodes[id]
	expanded := ok && n.Expanded
	e.mu.RUnlock()
	return e.SetExpanded(ctx, id, !expanded)
}

// Reveal handles an external selection such as a deep link to id. The first
// time a given selection is seen, every collapsed ancestor is expanded and
// persisted and id is focused. Repeating the same selection changes nothing,
// so a later manual collapse is never undone.
func (e *Engine) Reveal(ctx context.Context, id string) Result {
	e.mu.Lock()
	if e.session.selectionSeen && e.session.lastSelection == id {
		e.mu.Unlock()
		return succeeded(id, "already revealed")
	}
	if _, ok := e.arena.nodes[id]; !ok || id == models.RootID {
		e.mu.Unlock()
		return failed(apperr.NotFound("item %q", id))
	}
	e.session.lastSelection = id
	e.session.selectionSeen = true

	opened := make(map[string]bool)
	for _, anc := range e.arena.Ancestors(id) {
		if n := e.arena.nodes[anc]; !n.Expanded {
			n.Expanded = true
			opened[anc] = true
		}
	}
	e.session.Focused = id
	e.mu.Unlock()

	e.persistExpansion(ctx, opened)
	e.notify(OpExpansion, id)
	return succeeded(id, "revealed, expanded %d folders", len(opened))
}
