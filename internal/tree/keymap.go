package tree

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/key"
)

// Key is a key press as reported by the presentation layer, e.g. "up",
// "ctrl+x" or " " for the space bar.
type Key string

func (k Key) String() string { return string(k) }

// KeyMap binds the tree commands to keys.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Left        key.Binding
	Right       key.Binding
	Home        key.Binding
	End         key.Binding
	Toggle      key.Binding
	Cut         key.Binding
	Paste       key.Binding
	MoveToRoot  key.Binding
	ContextMenu key.Binding
	Delete      key.Binding
}

// DefaultKeyMap returns the stock bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous item")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next item")),
		Left:        key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "collapse / parent")),
		Right:       key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "expand")),
		Home:        key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("home/g", "first item")),
		End:         key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("end/G", "last item")),
		Toggle:      key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter/space", "toggle / open")),
		Cut:         key.NewBinding(key.WithKeys("ctrl+x", "x"), key.WithHelp("ctrl+x", "cut")),
		Paste:       key.NewBinding(key.WithKeys("ctrl+v", "p"), key.WithHelp("ctrl+v", "paste")),
		MoveToRoot:  key.NewBinding(key.WithKeys("ctrl+home", "R"), key.WithHelp("ctrl+home", "move to root")),
		ContextMenu: key.NewBinding(key.WithKeys("shift+f10", "m"), key.WithHelp("shift+f10", "context menu")),
		Delete:      key.NewBinding(key.WithKeys("delete", "d"), key.WithHelp("del", "delete")),
	}
}

func (k *KeyMap) bindings() map[string]*key.Binding {
	return map[string]*key.Binding{
		"up":           &k.Up,
		"down":         &k.Down,
		"left":         &k.Left,
		"right":        &k.Right,
		"home":         &k.Home,
		"end":          &k.End,
		"toggle":       &k.Toggle,
		"cut":          &k.Cut,
		"paste":        &k.Paste,
		"move_to_root": &k.MoveToRoot,
		"context_menu": &k.ContextMenu,
		"delete":       &k.Delete,
	}
}

// Commands returns the command names that can be rebound.
func Commands() []string {
	var k KeyMap
	names := make([]string, 0, 12)
	for name := range k.bindings() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithOverrides returns a copy of k with the keys of the named commands replaced.
func (k KeyMap) WithOverrides(overrides map[string][]string) (KeyMap, error) {
	out := k
	b := out.bindings()
	for name, keys := range overrides {
		binding, ok := b[name]
		if !ok {
			return k, fmt.Errorf("keymap: unknown command %q", name)
		}
		if len(keys) == 0 {
			return k, fmt.Errorf("keymap: command %q has no keys", name)
		}
		binding.SetKeys(keys...)
		binding.SetHelp(keys[0], binding.Help().Desc)
	}
	return out, nil
}

// Help lists the bindings as key/description pairs for a help overlay.
func (k KeyMap) Help() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Left, k.Right, k.Home, k.End,
		k.Toggle, k.Cut, k.Paste, k.MoveToRoot, k.ContextMenu, k.Delete,
	}
}
