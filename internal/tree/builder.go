package tree

import (
	"context"
	"log/slog"
	"slices"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// BuildReport describes rows the builder could not place where they asked to be.
type BuildReport struct {
	// Quarantined lists folders found on a parent cycle; they sit at root.
	Quarantined []string `json:"quarantined,omitempty"`
	// Orphans lists rows whose parent does not exist; they sit at root.
	Orphans []string `json:"orphans,omitempty"`
	// Duplicates lists ids seen more than once; only the first row is kept.
	Duplicates []string `json:"duplicates,omitempty"`
}

// Clean reports whether every row landed under the parent it named.
func (r BuildReport) Clean() bool {
	return len(r.Quarantined) == 0 && len(r.Orphans) == 0 && len(r.Duplicates) == 0
}

// Build turns flat folder and note rows into an arena. It never fails:
// folders on a parent cycle are quarantined at root and rows pointing at a
// missing parent are attached at root, so no row is lost.
//
// expansion carries persisted flags; folders without one are expanded at
// depth 1 and collapsed below it.
func Build(folders, notes []models.Record, expansion map[string]bool) (*Arena, BuildReport) {
	var report BuildReport
	a := NewArena()

	parentOf := make(map[string]string, len(folders))
	var folderRows []models.Record
	for _, f := range folders {
		if _, dup := parentOf[f.ID]; dup || f.ID == models.RootID {
			report.Duplicates = append(report.Duplicates, f.ID)
			continue
		}
		parentOf[f.ID] = f.ParentID
		folderRows = append(folderRows, f)
	}

	cyclic := detectCycles(folderRows, parentOf)

	position := make(map[string]int, len(folders)+len(notes))
	for _, f := range folderRows {
		a.nodes[f.ID] = &models.Node{ID: f.ID, Name: f.Name, Kind: models.KindFolder}
		position[f.ID] = f.Position
	}
	for _, f := range folderRows {
		parent := models.RootID
		_, exists := parentOf[f.ParentID]
		switch {
		case cyclic[f.ID]:
			report.Quarantined = append(report.Quarantined, f.ID)
		case f.ParentID == models.RootID:
		case !exists:
			report.Orphans = append(report.Orphans, f.ID)
		case cyclic[f.ParentID]:
			report.Quarantined = append(report.Quarantined, f.ID)
		default:
			parent = f.ParentID
		}
		link(a, f.ID, parent)
	}

	for _, n := range notes {
		if _, dup := a.nodes[n.ID]; dup || n.ID == models.RootID {
			report.Duplicates = append(report.Duplicates, n.ID)
			continue
		}
		a.nodes[n.ID] = &models.Node{ID: n.ID, Name: n.Name, Kind: models.KindNote}
		position[n.ID] = n.Position
		parent := n.ParentID
		if _, ok := parentOf[parent]; !ok && parent != models.RootID {
			report.Orphans = append(report.Orphans, n.ID)
			parent = models.RootID
		}
		link(a, n.ID, parent)
	}

	for _, n := range a.nodes {
		slices.SortStableFunc(n.Children, func(x, y string) int { return position[x] - position[y] })
	}
	a.setDepth(models.RootID, 0)

	for _, n := range a.nodes {
		if !n.IsFolder() || n.ID == models.RootID {
			continue
		}
		if v, ok := expansion[n.ID]; ok {
			n.Expanded = v
		} else {
			n.Expanded = n.Depth == 1
		}
	}
	return a, report
}

// detectCycles walks each folder's parent chain and marks every folder on a
// chain that revisits an id. Folders proven to reach root are remembered so
// later walks stop early.
func detectCycles(folders []models.Record, parentOf map[string]string) map[string]bool {
	cyclic := make(map[string]bool)
	clean := make(map[string]bool)
	for _, f := range folders {
		visited := make(map[string]bool)
		var path []string
		cur := f.ID
		for {
			if cur == models.RootID || clean[cur] {
				for _, id := range path {
					clean[id] = true
				}
				break
			}
			if visited[cur] || cyclic[cur] {
				for _, id := range path {
					cyclic[id] = true
				}
				break
			}
			parent, ok := parentOf[cur]
			if !ok {
				// Parent row is missing; the chain ends here.
				for _, id := range path {
					clean[id] = true
				}
				break
			}
			visited[cur] = true
			path = append(path, cur)
			cur = parent
		}
	}
	return cyclic
}

func link(a *Arena, id, parentID string) {
	a.nodes[id].ParentID = parentID
	p := a.nodes[parentID]
	p.Children = append(p.Children, id)
}

// Fetch lists every row from the store and builds the arena. When the rows
// cannot be fetched it returns an empty arena and the fetch error. Expansion
// flags that fail to load fall back to the defaults.
func Fetch(ctx context.Context, items ItemStore, expansion ExpansionStore, logger *slog.Logger) (*Arena, BuildReport, error) {
	folders, notes, err := items.ListItems(ctx)
	if err != nil {
		return NewArena(), BuildReport{}, apperr.Persistence(err)
	}

	var flags map[string]bool
	if expansion != nil {
		flags, err = expansion.GetExpansion(ctx)
		if err != nil {
			logger.Warn("tree: load expansion failed", slog.String("error", err.Error()))
			flags = nil
		}
	}

	a, report := Build(folders, notes, flags)
	if !report.Clean() {
		logger.Warn("tree: corrupt rows placed at root",
			slog.Any("quarantined", report.Quarantined),
			slog.Any("orphans", report.Orphans),
			slog.Any("duplicates", report.Duplicates))
	}
	logger.Debug("tree: built", slog.Int("nodes", a.Len()))
	return a, report, nil
}
