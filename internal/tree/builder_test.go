package tree

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

func rec(id, parent string) models.Record {
	return models.Record{ID: id, ParentID: parent, Name: id}
}

func TestBuild_NestsByParent(t *testing.T) {
	folders := []models.Record{rec("F1", ""), rec("F1a", "F1"), rec("F2", "")}
	notes := []models.Record{rec("n1", "F1a"), rec("n2", ""), rec("n3", "F1")}

	a, report := Build(folders, notes, nil)
	if !report.Clean() {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := a.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := a.Children(models.RootID); !slices.Equal(got, []string{"F1", "F2", "n2"}) {
		t.Errorf("root children = %v", got)
	}
	if got := a.Children("F1"); !slices.Equal(got, []string{"F1a", "n3"}) {
		t.Errorf("F1 children = %v", got)
	}
	n1, _ := a.Get("n1")
	if n1.Depth != 3 || n1.ParentID != "F1a" {
		t.Errorf("n1 = %+v, want depth 3 under F1a", n1)
	}
}

func TestBuild_Totality(t *testing.T) {
	folders := []models.Record{rec("a", ""), rec("b", "a"), rec("c", "b"), rec("d", "")}
	notes := []models.Record{rec("x", "c"), rec("y", ""), rec("z", "a")}

	a, _ := Build(folders, notes, nil)
	if a.Len() != len(folders)+len(notes) {
		t.Fatalf("Len = %d, want %d", a.Len(), len(folders)+len(notes))
	}
	seen := map[string]int{}
	for _, id := range append(a.IDs(), models.RootID) {
		for _, c := range a.Children(id) {
			seen[c]++
		}
	}
	for _, id := range a.IDs() {
		if seen[id] != 1 {
			t.Errorf("%s appears %d times as a child", id, seen[id])
		}
	}
}

func TestBuild_TwoCycleQuarantined(t *testing.T) {
	folders := []models.Record{rec("A", "B"), rec("B", "A")}

	a, report := Build(folders, nil, nil)
	if err := a.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := a.Children(models.RootID); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("root children = %v, want both quarantined at root", got)
	}
	slices.Sort(report.Quarantined)
	if !slices.Equal(report.Quarantined, []string{"A", "B"}) {
		t.Errorf("quarantined = %v", report.Quarantined)
	}
}

func TestBuild_CorruptRows(t *testing.T) {
	tests := []struct {
		name    string
		folders []models.Record
		notes   []models.Record
		atRoot  []string
	}{
		{
			name:    "self parent",
			folders: []models.Record{rec("S", "S")},
			atRoot:  []string{"S"},
		},
		{
			name:    "three cycle with tail",
			folders: []models.Record{rec("T", "A"), rec("A", "B"), rec("B", "C"), rec("C", "A")},
			atRoot:  []string{"T", "A", "B", "C"},
		},
		{
			name:    "missing parent",
			folders: []models.Record{rec("F", "ghost")},
			notes:   []models.Record{rec("n", "ghost")},
			atRoot:  []string{"F", "n"},
		},
		{
			name:    "note under note",
			notes:   []models.Record{rec("n1", ""), rec("n2", "n1")},
			atRoot:  []string{"n1", "n2"},
		},
		{
			name:    "note under cyclic folder stays with it",
			folders: []models.Record{rec("A", "B"), rec("B", "A")},
			notes:   []models.Record{rec("n", "A")},
			atRoot:  []string{"A", "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := Build(tt.folders, tt.notes, nil)
			if err := a.Check(); err != nil {
				t.Fatalf("Check: %v", err)
			}
			if a.Len() != len(tt.folders)+len(tt.notes) {
				t.Errorf("Len = %d, rows were dropped", a.Len())
			}
			if got := a.Children(models.RootID); !slices.Equal(got, tt.atRoot) {
				t.Errorf("root children = %v, want %v", got, tt.atRoot)
			}
		})
	}
}

func TestBuild_DuplicateIDsReported(t *testing.T) {
	folders := []models.Record{rec("F", ""), rec("F", "")}
	notes := []models.Record{rec("F", "")}

	a, report := Build(folders, notes, nil)
	if a.Len() != 1 {
		t.Errorf("Len = %d, want 1", a.Len())
	}
	if len(report.Duplicates) != 2 {
		t.Errorf("duplicates = %v, want two entries", report.Duplicates)
	}
	n, _ := a.Get("F")
	if n.Kind != models.KindFolder {
		t.Errorf("kind = %s, first row should win", n.Kind)
	}
}

func TestBuild_PositionOrdersSiblings(t *testing.T) {
	folders := []models.Record{{ID: "F", Name: "F", Position: 2}}
	notes := []models.Record{{ID: "n1", Name: "n1", Position: 3}, {ID: "n0", Name: "n0", Position: 1}}

	a, _ := Build(folders, notes, nil)
	if got := a.Children(models.RootID); !slices.Equal(got, []string{"n0", "F", "n1"}) {
		t.Errorf("root children = %v", got)
	}
}

func TestBuild_ExpansionDefaults(t *testing.T) {
	folders := []models.Record{rec("top", ""), rec("mid", "top"), rec("other", "")}

	a, _ := Build(folders, nil, map[string]bool{"other": false, "mid": true})
	top, _ := a.Get("top")
	mid, _ := a.Get("mid")
	other, _ := a.Get("other")
	if !top.Expanded {
		t.Error("root-level folder should default to expanded")
	}
	if !mid.Expanded {
		t.Error("persisted flag should expand a deep folder")
	}
	if other.Expanded {
		t.Error("persisted flag should collapse a root-level folder")
	}
}

func TestBuild_EmptyFolderKeepsKind(t *testing.T) {
	a, _ := Build([]models.Record{rec("empty", "")}, nil, nil)
	n, _ := a.Get("empty")
	if n.Kind != models.KindFolder {
		t.Errorf("kind = %s, want folder", n.Kind)
	}
}

func TestFetch_ListFailureReturnsEmptyArena(t *testing.T) {
	s := newMemStore().folder("F", "")
	s.listErr = errStoreDown

	a, _, err := Fetch(context.Background(), s, s, quietLogger())
	if !errors.Is(err, apperr.ErrPersistence) || !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want persistence failure wrapping the cause", err)
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d, want empty arena", a.Len())
	}
}

func TestSnapshot_Nested(t *testing.T) {
	a, _ := Build([]models.Record{rec("F", "")}, []models.Record{rec("n", "F")}, nil)
	root := a.Snapshot()
	if root.ID != models.RootID || len(root.Children) != 1 {
		t.Fatalf("root = %+v", root)
	}
	f := root.Children[0]
	if f.ID != "F" || !f.Expanded || len(f.Children) != 1 || f.Children[0].ID != "n" {
		t.Errorf("F = %+v", f)
	}
}
