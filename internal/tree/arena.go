package tree

import (
	"fmt"
	"slices"
	"sort"

	"github.com/starford/arbor/internal/models"
)

// Arena is the flat id-keyed map that owns every node. Structure is expressed
// only through ParentID and Children ids; nodes never embed one another.
// An Arena is not safe for concurrent use; the Engine serialises access.
type Arena struct {
	nodes map[string]*models.Node
}

// NewArena returns an arena holding only the root sentinel.
func NewArena() *Arena {
	a := &Arena{nodes: make(map[string]*models.Node)}
	a.nodes[models.RootID] = &models.Node{
		ID:       models.RootID,
		Kind:     models.KindFolder,
		Expanded: true,
	}
	return a
}

// Get returns a copy of the node stored under id.
func (a *Arena) Get(id string) (models.Node, bool) {
	n, ok := a.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return n.Clone(), true
}

// SetMany replaces the given entries in one step.
func (a *Arena) SetMany(patch map[string]models.Node) {
	for id, n := range patch {
		c := n.Clone()
		c.ID = id
		a.nodes[id] = &c
	}
}

// Insert stores n. It does not link n into its parent's children.
func (a *Arena) Insert(n models.Node) {
	c := n.Clone()
	a.nodes[c.ID] = &c
}

// Remove drops the entry for id. The root sentinel cannot be removed.
func (a *Arena) Remove(id string) {
	if id == models.RootID {
		return
	}
	delete(a.nodes, id)
}

// Len returns the number of nodes, excluding the root sentinel.
func (a *Arena) Len() int { return len(a.nodes) - 1 }

// IDs returns every non-root id in sorted order.
func (a *Arena) IDs() []string {
	out := make([]string, 0, len(a.nodes))
	for id := range a.nodes {
		if id != models.RootID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Children returns a copy of the ordered child ids of id.
func (a *Arena) Children(id string) []string {
	n, ok := a.nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(n.Children)
}

// Ancestors returns the parent chain of id, nearest first, excluding the root.
// The walk is bounded by the arena size so a corrupted arena cannot loop.
func (a *Arena) Ancestors(id string) []string {
	var out []string
	n, ok := a.nodes[id]
	for steps := 0; ok && n.ParentID != models.RootID && steps < len(a.nodes); steps++ {
		out = append(out, n.ParentID)
		n, ok = a.nodes[n.ParentID]
	}
	return out
}

// isWithin reports whether id is anc or lies beneath it.
func (a *Arena) isWithin(id, anc string) bool {
	if id == anc {
		return true
	}
	return slices.Contains(a.Ancestors(id), anc)
}

// Clone returns a deep copy of the arena.
func (a *Arena) Clone() *Arena {
	c := &Arena{nodes: make(map[string]*models.Node, len(a.nodes))}
	for id, n := range a.nodes {
		cp := n.Clone()
		c.nodes[id] = &cp
	}
	return c
}

// Equal reports whether a and b hold identical nodes.
func (a *Arena) Equal(b *Arena) bool {
	if len(a.nodes) != len(b.nodes) {
		return false
	}
	for id, n := range a.nodes {
		m, ok := b.nodes[id]
		if !ok {
			return false
		}
		if n.ID != m.ID || n.Name != m.Name || n.Kind != m.Kind || n.ParentID != m.ParentID ||
			n.Depth != m.Depth || n.Expanded != m.Expanded || !slices.Equal(n.Children, m.Children) {
			return false
		}
	}
	return true
}

// Check verifies the structural invariants: acyclicity, referential
// integrity, single location and depth consistency.
func (a *Arena) Check() error {
	seen := make(map[string]string, len(a.nodes))
	for id, n := range a.nodes {
		if n.Kind == models.KindNote && len(n.Children) > 0 {
			return fmt.Errorf("note %q has children", id)
		}
		for _, c := range n.Children {
			child, ok := a.nodes[c]
			if !ok {
				return fmt.Errorf("%q lists missing child %q", id, c)
			}
			if child.ParentID != id {
				return fmt.Errorf("%q lists %q whose parent is %q", id, c, child.ParentID)
			}
			if prev, dup := seen[c]; dup {
				return fmt.Errorf("%q is listed by both %q and %q", c, prev, id)
			}
			seen[c] = id
		}
	}
	for id, n := range a.nodes {
		if id == models.RootID {
			continue
		}
		if seen[id] != n.ParentID {
			return fmt.Errorf("%q is not listed by its parent %q", id, n.ParentID)
		}
		if p := a.nodes[n.ParentID]; p == nil || !p.IsFolder() {
			return fmt.Errorf("%q has parent %q that is not a folder", id, n.ParentID)
		}
	}
	// Every node reachable from root exactly once implies a forest.
	reached := 0
	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		n := a.nodes[id]
		if n.Depth != depth {
			return fmt.Errorf("%q has depth %d, want %d", id, n.Depth, depth)
		}
		reached++
		if reached > len(a.nodes) {
			return fmt.Errorf("cycle through %q", id)
		}
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(models.RootID, 0); err != nil {
		return err
	}
	if reached != len(a.nodes) {
		return fmt.Errorf("%d nodes are unreachable from root", len(a.nodes)-reached)
	}
	return nil
}

// Snapshot renders the arena as a nested tree rooted at the sentinel.
func (a *Arena) Snapshot() *models.TreeNode {
	var build func(id string, budget *int) *models.TreeNode
	build = func(id string, budget *int) *models.TreeNode {
		n := a.nodes[id]
		out := &models.TreeNode{ID: n.ID, Name: n.Name, Kind: n.Kind, Expanded: n.IsFolder() && n.Expanded}
		for _, c := range n.Children {
			if *budget <= 0 {
				break
			}
			*budget--
			out.Children = append(out.Children, build(c, budget))
		}
		return out
	}
	budget := len(a.nodes)
	return build(models.RootID, &budget)
}

// detach unlinks id from its parent's children.
func (a *Arena) detach(id string) {
	n, ok := a.nodes[id]
	if !ok {
		return
	}
	if p, ok := a.nodes[n.ParentID]; ok {
		p.Children = slices.DeleteFunc(p.Children, func(c string) bool { return c == id })
	}
}

// relocation builds the patch that moves id under parentID, right after
// afterID when it is a child of parentID, otherwise at the end. It covers id
// and its old and new parents; depths beneath id are left to setDepth.
func (a *Arena) relocation(id, parentID, afterID string) map[string]models.Node {
	n := a.nodes[id].Clone()
	patch := make(map[string]models.Node, 3)
	if old, ok := a.nodes[n.ParentID]; ok {
		p := old.Clone()
		p.Children = slices.DeleteFunc(p.Children, func(c string) bool { return c == id })
		patch[p.ID] = p
	}
	p, ok := patch[parentID]
	if !ok {
		p = a.nodes[parentID].Clone()
	}
	idx := -1
	if afterID != "" {
		idx = slices.Index(p.Children, afterID)
	}
	if idx < 0 {
		p.Children = append(p.Children, id)
	} else {
		p.Children = slices.Insert(p.Children, idx+1, id)
	}
	patch[parentID] = p

	n.ParentID = parentID
	n.Depth = p.Depth + 1
	patch[id] = n
	return patch
}

func (a *Arena) setDepth(id string, depth int) {
	n := a.nodes[id]
	n.Depth = depth
	for _, c := range n.Children {
		a.setDepth(c, depth+1)
	}
}

// subtree returns id and all of its descendants in pre-order.
func (a *Arena) subtree(id string) []string {
	out := []string{id}
	for _, c := range a.nodes[id].Children {
		out = append(out, a.subtree(c)...)
	}
	return out
}

// visible returns the pre-order ids reachable through expanded folders,
// excluding the root.
func (a *Arena) visible() []string {
	var out []string
	var walk func(id string)
	walk = func(id string) {
		n := a.nodes[id]
		for _, c := range n.Children {
			out = append(out, c)
			if child := a.nodes[c]; child.IsFolder() && child.Expanded {
				walk(c)
			}
		}
	}
	walk(models.RootID)
	return out
}
