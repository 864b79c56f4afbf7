// Package models defines the domain types for Arbor.
package models

import "fmt"

// Kind distinguishes folders from notes. It is fixed at creation.
type Kind string

// Item kinds.
const (
	KindFolder Kind = "folder"
	KindNote   Kind = "note"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFolder || k == KindNote
}

// ParseKind converts s into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown item kind %q", s)
	}
	return k, nil
}

// RootID identifies the root sentinel. Root-level items carry it as ParentID.
const RootID = ""

// Node is one folder or note held in the arena.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     Kind     `json:"kind"`
	ParentID string   `json:"parent_id,omitempty"`
	Children []string `json:"children,omitempty"`

	// UI-only state.
	Depth    int  `json:"depth"`
	Expanded bool `json:"expanded"`
}

// IsFolder reports whether n is a folder.
func (n Node) IsFolder() bool { return n.Kind == KindFolder }

// Clone returns a copy of n that shares no memory with it.
func (n Node) Clone() Node {
	c := n
	if n.Children != nil {
		c.Children = append([]string(nil), n.Children...)
	}
	return c
}

// Record is one flat row of the persisted relation.
type Record struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// TreeNode is the nested rendering of the arena served to clients.
type TreeNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     Kind        `json:"kind"`
	Expanded bool        `json:"expanded,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Row carries the render flags for one visible node.
type Row struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Depth    int    `json:"depth"`
	Expanded bool   `json:"expanded"`
	Focused  bool   `json:"focused"`
	Cut      bool   `json:"cut"`
}
