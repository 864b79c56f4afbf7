package tree

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// Change ops reported to observers.
const (
	OpInsert    = "insert"
	OpRename    = "rename"
	OpMove      = "move"
	OpPromote   = "promote"
	OpDelete    = "delete"
	OpRefresh   = "refresh"
	OpExpansion = "expansion"
	OpFocus     = "focus"
	OpCut       = "cut"
)

// Change describes a completed edit of the arena or the session.
type Change struct {
	Op  string   `json:"op"`
	IDs []string `json:"ids,omitempty"`
}

// Observer is notified after each completed change, outside the engine lock.
type Observer func(Change)

// Engine owns one arena and one session and applies structural operations
// to them. Every mutation validates locally, performs exactly one store round
// trip, and edits the arena only after the store has confirmed.
type Engine struct {
	items     ItemStore
	expansion ExpansionStore
	logger    *slog.Logger
	keys      KeyMap
	observer  Observer
	gate      *gate

	mu      sync.RWMutex
	arena   *Arena
	session *Session
	report  BuildReport
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSession makes the engine use s as its view state.
func WithSession(s *Session) Option {
	return func(e *Engine) { e.session = s }
}

// WithObserver registers fn to be told about completed changes.
func WithObserver(fn Observer) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithKeyMap replaces the default key bindings.
func WithKeyMap(k KeyMap) Option {
	return func(e *Engine) { e.keys = k }
}

// NewEngine returns an engine over an empty arena. Call Refresh to load it.
func NewEngine(items ItemStore, expansion ExpansionStore, opts ...Option) *Engine {
	e := &Engine{
		items:     items,
		expansion: expansion,
		logger:    slog.Default(),
		keys:      DefaultKeyMap(),
		gate:      newGate(),
		arena:     NewArena(),
		session:   NewSession(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) notify(op string, ids ...string) {
	if e.observer != nil {
		e.observer(Change{Op: op, IDs: ids})
	}
}

// storeCtx detaches a round trip from caller cancellation: once issued, its
// outcome is always awaited before the arena is touched or left alone.
func storeCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// Arena returns a deep copy of the current arena.
func (e *Engine) Arena() *Arena {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.arena.Clone()
}

// Get returns a copy of the node stored under id.
func (e *Engine) Get(id string) (models.Node, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.arena.Get(id)
}

// Session returns a copy of the view state.
func (e *Engine) Session() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := *e.session
	if s.Menu != nil {
		m := *s.Menu
		s.Menu = &m
	}
	return s
}

// KeyMap returns the key bindings in use.
func (e *Engine) KeyMap() KeyMap { return e.keys }

// Report returns the corruption report of the last full build.
func (e *Engine) Report() BuildReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report
}

// Refresh rebuilds the arena from the store and replaces it wholesale. On
// failure the current arena is kept. Focus and cut survive when their ids do.
func (e *Engine) Refresh(ctx context.Context) Result {
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()

	a, report, err := Fetch(storeCtx(ctx), e.items, e.expansion, e.logger)
	if err != nil {
		e.logger.Error("tree: refresh failed", slog.String("error", err.Error()))
		return failed(err)
	}

	e.mu.Lock()
	e.arena = a
	e.report = report
	for _, id := range []string{e.session.Focused, e.session.Cut} {
		if _, ok := a.nodes[id]; !ok || id == models.RootID {
			e.session.forget(id)
		}
	}
	if e.session.Menu != nil {
		if _, ok := a.nodes[e.session.Menu.ID]; !ok {
			e.session.Menu = nil
		}
	}
	e.mu.Unlock()

	e.notify(OpRefresh)
	return succeeded("", "loaded %d items", a.Len())
}

type movePlan struct {
	parentID string
	afterID  string
}

// planMove validates a move and resolves where the node will land.
// The caller holds e.mu.
func (e *Engine) planMove(nodeID, targetID string, toRoot bool) (movePlan, error) {
	node, ok := e.arena.nodes[nodeID]
	if !ok || nodeID == models.RootID {
		return movePlan{}, apperr.NotFound("item %q", nodeID)
	}
	if toRoot {
		return movePlan{parentID: models.RootID}, nil
	}
	if targetID == nodeID {
		return movePlan{}, apperr.ErrSelfMove
	}
	target, ok := e.arena.nodes[targetID]
	if !ok || targetID == models.RootID {
		return movePlan{}, apperr.NotFound("target %q", targetID)
	}
	if node.IsFolder() && e.arena.isWithin(targetID, nodeID) {
		return movePlan{}, apperr.ErrCyclicMove
	}
	if target.IsFolder() {
		return movePlan{parentID: targetID}, nil
	}
	return movePlan{parentID: target.ParentID, afterID: targetID}, nil
}

// applyMove performs the local half of a confirmed move. The caller holds e.mu.
// A folder entering or leaving the top level changes its default expansion,
// so its current flag is returned for persisting.
func (e *Engine) applyMove(nodeID string, plan movePlan) map[string]bool {
	wasTop := e.arena.nodes[nodeID].Depth == 1
	e.arena.SetMany(e.arena.relocation(nodeID, plan.parentID, plan.afterID))
	n := e.arena.nodes[nodeID]
	e.arena.setDepth(nodeID, n.Depth)
	if e.session.Cut == nodeID {
		e.session.Cut = ""
	}
	if n.IsFolder() && wasTop != (n.Depth == 1) {
		return map[string]bool{nodeID: n.Expanded}
	}
	return nil
}

// Move relocates nodeID. With toRoot it becomes a root-level item; onto a
// folder it becomes that folder's last child; onto a note it becomes the
// note's next sibling.
func (e *Engine) Move(ctx context.Context, nodeID, targetID string, toRoot bool) Result {
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()
	return e.move(ctx, nodeID, targetID, toRoot)
}

func (e *Engine) move(ctx context.Context, nodeID, targetID string, toRoot bool) Result {
	e.mu.RLock()
	plan, err := e.planMove(nodeID, targetID, toRoot)
	e.mu.RUnlock()
	if err != nil {
		return failed(err)
	}

	if plan.parentID == models.RootID && plan.afterID == "" {
		err = e.items.MoveItemToRoot(storeCtx(ctx), nodeID)
	} else {
		err = e.items.MoveItem(storeCtx(ctx), nodeID, plan.parentID, plan.afterID)
	}
	if err != nil {
		err = apperr.Persistence(err)
		e.logger.Warn("tree: move failed", slog.String("id", nodeID), slog.String("error", err.Error()))
		return failed(err)
	}

	e.mu.Lock()
	flags := e.applyMove(nodeID, plan)
	e.mu.Unlock()
	e.persistExpansion(ctx, flags)

	e.notify(OpMove, nodeID)
	if plan.parentID == models.RootID {
		return succeeded(nodeID, "moved to root")
	}
	return succeeded(nodeID, "moved")
}

// Cut marks id as the pending item for the next Paste, replacing any
// previous marker.
func (e *Engine) Cut(id string) Result {
	e.mu.Lock()
	if _, ok := e.arena.nodes[id]; !ok || id == models.RootID {
		e.mu.Unlock()
		return failed(apperr.NotFound("item %q", id))
	}
	e.session.Cut = id
	e.mu.Unlock()

	e.notify(OpCut, id)
	return succeeded(id, "cut")
}

// Paste moves the cut item onto the focused node. The marker is cleared only
// by a successful move, so a failed paste can be retried.
func (e *Engine) Paste(ctx context.Context) Result {
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()

	e.mu.RLock()
	cut, focused := e.session.Cut, e.session.Focused
	e.mu.RUnlock()
	if cut == "" {
		return failed(apperr.ErrNoPendingCut)
	}
	if focused == "" {
		return failed(apperr.Invalid("nothing is focused to paste onto"))
	}
	return e.move(ctx, cut, focused, false)
}

// promoteTarget resolves where id would land when promoted. Folders may land
// at root; notes must land inside a folder. The caller holds e.mu.
func (e *Engine) promoteTarget(id string) (string, error) {
	node, ok := e.arena.nodes[id]
	if !ok || id == models.RootID {
		return "", apperr.NotFound("item %q", id)
	}
	if node.ParentID == models.RootID {
		return "", apperr.ErrNoAncestorToPromoteTo
	}
	grand := e.arena.nodes[node.ParentID].ParentID
	if !node.IsFolder() && grand == models.RootID {
		return "", apperr.ErrNoAncestorToPromoteTo
	}
	return grand, nil
}

// Promote moves id up past its containing level to its grandparent.
func (e *Engine) Promote(ctx context.Context, id string) Result {
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()

	e.mu.RLock()
	target, err := e.promoteTarget(id)
	e.mu.RUnlock()
	if err != nil {
		return failed(err)
	}

	resolved, err := e.items.PromoteItem(storeCtx(ctx), id)
	if err != nil {
		err = apperr.Persistence(err)
		e.logger.Warn("tree: promote failed", slog.String("id", id), slog.String("error", err.Error()))
		return failed(err)
	}

	e.mu.Lock()
	if resolved != target {
		p, ok := e.arena.nodes[resolved]
		if !ok || !p.IsFolder() || e.arena.isWithin(resolved, id) {
			e.logger.Warn("tree: store promoted to an unknown parent, using local target",
				slog.String("id", id), slog.String("store_parent", resolved), slog.String("local_parent", target))
			resolved = target
		}
	}
	flags := e.applyMove(id, movePlan{parentID: resolved})
	e.mu.Unlock()
	e.persistExpansion(ctx, flags)

	e.notify(OpPromote, id)
	return succeeded(id, "promoted")
}

// Delete removes id and everything beneath it. When the focused node goes
// away, focus falls back to the former parent, then to the first visible
// node, then to nothing.
func (e *Engine) Delete(ctx context.Context, id string) Result {
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()

	e.mu.RLock()
	_, ok := e.arena.nodes[id]
	e.mu.RUnlock()
	if !ok || id == models.RootID {
		return failed(apperr.NotFound("item %q", id))
	}

	if err := e.items.DeleteItem(storeCtx(ctx), id); err != nil {
		err = apperr.Persistence(err)
		e.logger.Warn("tree: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		return failed(err)
	}

	e.mu.Lock()
	parentID := e.arena.nodes[id].ParentID
	removed := e.arena.subtree(id)
	focusLost := false
	for _, r := range removed {
		if r == e.session.Focused {
			focusLost = true
		}
	}
	e.arena.detach(id)
	for _, r := range removed {
		e.arena.Remove(r)
	}
	e.session.forget(removed...)
	if focusLost {
		switch visible := e.arena.visible(); {
		case parentID != models.RootID && e.arena.nodes[parentID] != nil:
			e.session.Focused = parentID
		case len(visible) > 0:
			e.session.Focused = visible[0]
		}
	}
	e.mu.Unlock()

	e.notify(OpDelete, removed...)
	return succeeded(id, "deleted %d items", len(removed))
}

// Insert creates a new item under parentID (models.RootID for root level)
// and focuses it.
func (e *Engine) Insert(ctx context.Context, parentID, name string, kind models.Kind) Result {
	name = strings.TrimSpace(name)
	if !kind.Valid() {
		return failed(apperr.Invalid("unknown item kind %q", kind))
	}
	if name == "" {
		return failed(apperr.Invalid("name is required"))
	}
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()

	e.mu.RLock()
	parent, ok := e.arena.nodes[parentID]
	isFolder := ok && parent.IsFolder()
	e.mu.RUnlock()
	if !ok {
		return failed(apperr.NotFound("parent %q", parentID))
	}
	if !isFolder {
		return failed(apperr.Invalid("parent %q is not a folder", parentID))
	}

	id, err := e.items.CreateItem(storeCtx(ctx), kind, name, parentID)
	if err != nil {
		err = apperr.Persistence(err)
		e.logger.Warn("tree: create failed", slog.String("parent", parentID), slog.String("error", err.Error()))
		return failed(err)
	}

	e.mu.Lock()
	parent = e.arena.nodes[parentID]
	depth := parent.Depth + 1
	e.arena.Insert(models.Node{
		ID: id, Name: name, Kind: kind, ParentID: parentID, Depth: depth,
		Expanded: kind == models.KindFolder && depth == 1,
	})
	parent.Children = append(parent.Children, id)
	// Reveal the new node if the parent was collapsed.
	var opened map[string]bool
	if parentID != models.RootID && !parent.Expanded {
		parent.Expanded = true
		opened = map[string]bool{parentID: true}
	}
	e.session.Focused = id
	e.mu.Unlock()

	if opened != nil {
		e.persistExpansion(ctx, opened)
	}
	e.notify(OpInsert, id)
	return succeeded(id, "created %s %q", kind, name)
}

// Rename changes the display name of id.
func (e *Engine) Rename(ctx context.Context, id, name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return failed(apperr.Invalid("name is required"))
	}
	if !e.gate.enter() {
		return failed(apperr.ErrBusy)
	}
	defer e.gate.leave()

	e.mu.RLock()
	_, ok := e.arena.nodes[id]
	e.mu.RUnlock()
	if !ok || id == models.RootID {
		return failed(apperr.NotFound("item %q", id))
	}

	if err := e.items.RenameItem(storeCtx(ctx), id, name); err != nil {
		err = apperr.Persistence(err)
		e.logger.Warn("tree: rename failed", slog.String("id", id), slog.String("error", err.Error()))
		return failed(err)
	}

	e.mu.Lock()
	n := e.arena.nodes[id].Clone()
	n.Name = name
	e.arena.SetMany(map[string]models.Node{id: n})
	e.mu.Unlock()

	e.notify(OpRename, id)
	return succeeded(id, "renamed to %q", name)
}
