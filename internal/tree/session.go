package tree

// Session holds the single-slot view state of one tree view: the focused id,
// the pending cut marker and the last external selection. Each Engine owns
// its own Session, so independent views never share a cut or a focus.
type Session struct {
	Focused string `json:"focused,omitempty"`
	Cut     string `json:"cut,omitempty"`
	// InputFocus is true while the tree receives keyboard input.
	InputFocus bool `json:"input_focus"`
	// Menu is the open context menu, if any.
	Menu *ContextMenu `json:"menu,omitempty"`

	lastSelection string
	selectionSeen bool
}

// ContextMenu anchors a context menu at a node.
type ContextMenu struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// forget clears every slot that names one of ids.
func (s *Session) forget(ids ...string) {
	for _, id := range ids {
		if s.Cut == id {
			s.Cut = ""
		}
		if s.Focused == id {
			s.Focused = ""
		}
		if s.Menu != nil && s.Menu.ID == id {
			s.Menu = nil
		}
	}
}
