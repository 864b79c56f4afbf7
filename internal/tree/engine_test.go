package tree

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/models"
)

// sampleStore is F1 > F1a > F1b with notes n1 in F1 and n2 in F1b, plus a
// second root folder F2 and a root-level note top.
func sampleStore() *memStore {
	return newMemStore().
		folder("F1", "").
		folder("F1a", "F1").
		folder("F1b", "F1a").
		folder("F2", "").
		note("n1", "F1").
		note("n2", "F1b").
		note("top", "")
}

func parentOf(t *testing.T, e *Engine, id string) string {
	t.Helper()
	n, ok := e.Get(id)
	if !ok {
		t.Fatalf("%s missing from arena", id)
	}
	return n.ParentID
}

func TestMove_OntoSelfChangesNothing(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	before := e.Arena()

	mustFail(t, e.Move(context.Background(), "F1", "F1", false), apperr.ErrSelfMove)

	if !e.Arena().Equal(before) {
		t.Error("arena changed after self move")
	}
	if s.callCount() != 0 {
		t.Errorf("store calls = %d, want 0", s.callCount())
	}
}

func TestMove_IntoOwnDescendantRejected(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	before := e.Arena()

	for _, target := range []string{"F1a", "F1b", "n2"} {
		res := e.Move(context.Background(), "F1", target, false)
		mustFail(t, res, apperr.ErrCyclicMove)
		if !errors.Is(res.Err, apperr.ErrInvalidOperation) {
			t.Errorf("target %s: cyclic move should be an invalid operation", target)
		}
	}
	if !e.Arena().Equal(before) {
		t.Error("arena changed after rejected move")
	}
	if s.callCount() != 0 {
		t.Errorf("store calls = %d, want 0", s.callCount())
	}
}

func TestMove_Destinations(t *testing.T) {
	tests := []struct {
		name       string
		node       string
		target     string
		toRoot     bool
		wantParent string
		wantSibs   []string
	}{
		{"onto folder appends", "top", "F1", false, "F1", []string{"F1a", "n1", "top"}},
		{"onto note lands after it", "top", "n1", false, "F1", []string{"F1a", "n1", "top"}},
		{"onto nested note", "F2", "n2", false, "F1b", []string{"n2", "F2"}},
		{"to root", "F1b", "", true, models.RootID, []string{"F1", "F2", "top", "F1b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleStore()
			e := loadedEngine(t, s)

			mustSucceed(t, e.Move(context.Background(), tt.node, tt.target, tt.toRoot))
			mustCheck(t, e)
			if got := parentOf(t, e, tt.node); got != tt.wantParent {
				t.Errorf("parent = %q, want %q", got, tt.wantParent)
			}
			if got := e.Arena().Children(tt.wantParent); !slices.Equal(got, tt.wantSibs) {
				t.Errorf("siblings = %v, want %v", got, tt.wantSibs)
			}
			if s.callCount() != 1 {
				t.Errorf("store calls = %d, want 1", s.callCount())
			}
		})
	}
}

func TestMove_DepthFollowsSubtree(t *testing.T) {
	e := loadedEngine(t, sampleStore())

	mustSucceed(t, e.Move(context.Background(), "F1a", "", true))

	for id, want := range map[string]int{"F1a": 1, "F1b": 2, "n2": 3} {
		n, _ := e.Get(id)
		if n.Depth != want {
			t.Errorf("%s depth = %d, want %d", id, n.Depth, want)
		}
	}
}

func TestMove_StoreFailureLeavesArena(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	before := e.Arena()
	s.fail = errStoreDown

	res := e.Move(context.Background(), "top", "F2", false)
	mustFail(t, res, apperr.ErrPersistence)
	if !errors.Is(res.Err, errStoreDown) {
		t.Errorf("err = %v, want cause preserved", res.Err)
	}
	if !e.Arena().Equal(before) {
		t.Error("arena changed after failed store call")
	}
}

func TestMove_UnknownIDs(t *testing.T) {
	e := loadedEngine(t, sampleStore())

	mustFail(t, e.Move(context.Background(), "ghost", "F1", false), apperr.ErrNotFound)
	mustFail(t, e.Move(context.Background(), "top", "ghost", false), apperr.ErrNotFound)
	mustFail(t, e.Move(context.Background(), models.RootID, "F1", false), apperr.ErrNotFound)
}

func TestArena_SetManyReplacesEntriesTogether(t *testing.T) {
	a, _ := Build(
		[]models.Record{{ID: "A", Name: "A"}, {ID: "B", Name: "B"}},
		[]models.Record{{ID: "n", ParentID: "A", Name: "n"}},
		nil,
	)

	patch := a.relocation("n", "B", "")
	if len(patch) != 3 {
		t.Fatalf("patch covers %d entries, want node and both parents", len(patch))
	}
	a.SetMany(patch)
	if err := a.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if n, _ := a.Get("n"); n.ParentID != "B" || n.Depth != 2 {
		t.Errorf("n = %+v", n)
	}
	if got := a.Children("A"); len(got) != 0 {
		t.Errorf("A children = %v", got)
	}

	// The arena owns copies of the patch entries.
	patch["B"].Children[0] = "mutated"
	if got := a.Children("B"); !slices.Equal(got, []string{"n"}) {
		t.Errorf("B children = %v", got)
	}
}

func TestMove_TopLevelCrossingKeepsExpansion(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	ctx := context.Background()

	mustSucceed(t, e.Move(ctx, "F1b", "", true))
	mustSucceed(t, e.Move(ctx, "F2", "F1", false))
	if v, ok := s.flags["F1b"]; !ok || v {
		t.Errorf("F1b flag = %v, %v; want persisted collapsed", v, ok)
	}
	if v, ok := s.flags["F2"]; !ok || !v {
		t.Errorf("F2 flag = %v, %v; want persisted expanded", v, ok)
	}

	mustSucceed(t, e.Move(ctx, "F1a", "F2", false))
	if _, ok := s.flags["F1a"]; ok {
		t.Error("a move below the top level should persist nothing")
	}

	mustSucceed(t, e.Refresh(ctx))
	if n, _ := e.Get("F1b"); n.Expanded {
		t.Error("F1b expanded after refresh")
	}
	if n, _ := e.Get("F2"); !n.Expanded {
		t.Error("F2 collapsed after refresh")
	}
	mustCheck(t, e)
}

func TestCutPaste(t *testing.T) {
	t.Run("onto folder", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Cut("top"))
		mustSucceed(t, e.Focus("F2"))

		mustSucceed(t, e.Paste(context.Background()))

		if got := parentOf(t, e, "top"); got != "F2" {
			t.Errorf("parent = %q, want F2", got)
		}
		if e.Session().Cut != "" {
			t.Error("cut marker should clear after paste")
		}
	})

	t.Run("onto note", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Cut("F2"))
		mustSucceed(t, e.Focus("n1"))

		mustSucceed(t, e.Paste(context.Background()))

		if got := e.Arena().Children("F1"); !slices.Equal(got, []string{"F1a", "n1", "F2"}) {
			t.Errorf("F1 children = %v", got)
		}
		if e.Session().Cut != "" {
			t.Error("cut marker should clear after paste")
		}
	})

	t.Run("failure keeps marker", func(t *testing.T) {
		s := sampleStore()
		e := loadedEngine(t, s)
		mustSucceed(t, e.Cut("top"))
		mustSucceed(t, e.Focus("F2"))
		s.fail = errStoreDown

		mustFail(t, e.Paste(context.Background()), apperr.ErrPersistence)
		if e.Session().Cut != "top" {
			t.Errorf("cut = %q, want marker kept for retry", e.Session().Cut)
		}

		s.fail = nil
		mustSucceed(t, e.Paste(context.Background()))
	})

	t.Run("cyclic paste keeps marker", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Cut("F1"))
		mustSucceed(t, e.Focus("F1b"))

		mustFail(t, e.Paste(context.Background()), apperr.ErrCyclicMove)
		if e.Session().Cut != "F1" {
			t.Error("cut marker should survive a rejected paste")
		}
	})

	t.Run("nothing cut", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Focus("F2"))
		mustFail(t, e.Paste(context.Background()), apperr.ErrNoPendingCut)
	})

	t.Run("nothing focused", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Cut("top"))
		mustFail(t, e.Paste(context.Background()), apperr.ErrInvalidOperation)
	})

	t.Run("second cut replaces first", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Cut("top"))
		mustSucceed(t, e.Cut("n1"))
		if e.Session().Cut != "n1" {
			t.Errorf("cut = %q, want n1", e.Session().Cut)
		}
	})
}

func TestPromote(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantParent string
		wantErr    error
	}{
		{"note to grandparent folder", "n2", "F1a", nil},
		{"folder to grandparent", "F1b", "F1", nil},
		{"second level folder to root", "F1a", models.RootID, nil},
		{"root level folder", "F1", "", apperr.ErrNoAncestorToPromoteTo},
		{"root level note", "top", "", apperr.ErrNoAncestorToPromoteTo},
		{"note in root level folder", "n1", "", apperr.ErrNoAncestorToPromoteTo},
		{"unknown", "ghost", "", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleStore()
			e := loadedEngine(t, s)

			res := e.Promote(context.Background(), tt.id)
			if tt.wantErr != nil {
				mustFail(t, res, tt.wantErr)
				if s.callCount() != 0 {
					t.Errorf("store calls = %d, want 0", s.callCount())
				}
				return
			}
			mustSucceed(t, res)
			mustCheck(t, e)
			if got := parentOf(t, e, tt.id); got != tt.wantParent {
				t.Errorf("parent = %q, want %q", got, tt.wantParent)
			}
		})
	}
}

func TestPromote_StoreParentDisagrees(t *testing.T) {
	t.Run("known folder wins", func(t *testing.T) {
		s := sampleStore()
		e := loadedEngine(t, s)
		f2 := "F2"
		s.promoteTo = &f2

		mustSucceed(t, e.Promote(context.Background(), "n2"))
		if got := parentOf(t, e, "n2"); got != "F2" {
			t.Errorf("parent = %q, want store's answer F2", got)
		}
	})

	t.Run("unknown parent falls back", func(t *testing.T) {
		s := sampleStore()
		e := loadedEngine(t, s)
		ghost := "ghost"
		s.promoteTo = &ghost

		mustSucceed(t, e.Promote(context.Background(), "n2"))
		mustCheck(t, e)
		if got := parentOf(t, e, "n2"); got != "F1a" {
			t.Errorf("parent = %q, want local target F1a", got)
		}
	})
}

func TestDelete_RemovesSubtree(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	mustSucceed(t, e.Cut("n2"))

	mustSucceed(t, e.Delete(context.Background(), "F1a"))
	mustCheck(t, e)

	for _, id := range []string{"F1a", "F1b", "n2"} {
		if _, ok := e.Get(id); ok {
			t.Errorf("%s still present", id)
		}
	}
	if e.Session().Cut != "" {
		t.Error("cut marker inside a deleted subtree should clear")
	}
	if s.callCount() != 1 {
		t.Errorf("store calls = %d, want 1", s.callCount())
	}
}

func TestDelete_FocusFallback(t *testing.T) {
	t.Run("to parent", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Focus("n1"))
		mustSucceed(t, e.Delete(context.Background(), "n1"))
		if got := e.Session().Focused; got != "F1" {
			t.Errorf("focused = %q, want F1", got)
		}
	})

	t.Run("descendant focus goes to parent of deleted node", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Reveal(context.Background(), "n2"))
		mustSucceed(t, e.Delete(context.Background(), "F1b"))
		if got := e.Session().Focused; got != "F1a" {
			t.Errorf("focused = %q, want F1a", got)
		}
	})

	t.Run("to first visible", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Focus("top"))
		mustSucceed(t, e.Delete(context.Background(), "top"))
		if got := e.Session().Focused; got != "F1" {
			t.Errorf("focused = %q, want first visible F1", got)
		}
	})

	t.Run("to nothing", func(t *testing.T) {
		e := loadedEngine(t, newMemStore().note("only", ""))
		mustSucceed(t, e.Focus("only"))
		mustSucceed(t, e.Delete(context.Background(), "only"))
		if got := e.Session().Focused; got != "" {
			t.Errorf("focused = %q, want none", got)
		}
	})

	t.Run("unrelated focus kept", func(t *testing.T) {
		e := loadedEngine(t, sampleStore())
		mustSucceed(t, e.Focus("F2"))
		mustSucceed(t, e.Delete(context.Background(), "top"))
		if got := e.Session().Focused; got != "F2" {
			t.Errorf("focused = %q, want F2", got)
		}
	})
}

func TestDelete_Failures(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	before := e.Arena()

	mustFail(t, e.Delete(context.Background(), "ghost"), apperr.ErrNotFound)
	mustFail(t, e.Delete(context.Background(), models.RootID), apperr.ErrNotFound)

	s.fail = errStoreDown
	mustFail(t, e.Delete(context.Background(), "F1"), apperr.ErrPersistence)
	if !e.Arena().Equal(before) {
		t.Error("arena changed after failed delete")
	}
}

func TestInsert(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	mustSucceed(t, e.SetExpanded(context.Background(), "F2", false))

	res := e.Insert(context.Background(), "F2", "  Ideas ", models.KindNote)
	mustSucceed(t, res)
	mustCheck(t, e)

	n, ok := e.Get(res.ID)
	if !ok {
		t.Fatalf("new item %q missing", res.ID)
	}
	if n.Name != "Ideas" || n.Kind != models.KindNote || n.ParentID != "F2" || n.Depth != 2 {
		t.Errorf("new item = %+v", n)
	}
	if e.Session().Focused != res.ID {
		t.Errorf("focused = %q, want new item", e.Session().Focused)
	}
	f2, _ := e.Get("F2")
	if !f2.Expanded {
		t.Error("collapsed parent should expand to show the new item")
	}
	if !s.flags["F2"] {
		t.Error("parent expansion should be persisted")
	}

	root := e.Insert(context.Background(), models.RootID, "Archive", models.KindFolder)
	mustSucceed(t, root)
	if got := parentOf(t, e, root.ID); got != models.RootID {
		t.Errorf("parent = %q, want root", got)
	}
}

func TestInsert_Rejected(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)

	mustFail(t, e.Insert(context.Background(), "F1", "  ", models.KindNote), apperr.ErrInvalidOperation)
	mustFail(t, e.Insert(context.Background(), "F1", "x", models.Kind("link")), apperr.ErrInvalidOperation)
	mustFail(t, e.Insert(context.Background(), "top", "x", models.KindNote), apperr.ErrInvalidOperation)
	mustFail(t, e.Insert(context.Background(), "ghost", "x", models.KindNote), apperr.ErrNotFound)
	if s.callCount() != 0 {
		t.Errorf("store calls = %d, want 0", s.callCount())
	}
}

func TestRename(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)

	mustSucceed(t, e.Rename(context.Background(), "n1", "Groceries"))
	if n, _ := e.Get("n1"); n.Name != "Groceries" {
		t.Errorf("name = %q", n.Name)
	}

	mustFail(t, e.Rename(context.Background(), "n1", ""), apperr.ErrInvalidOperation)
	mustFail(t, e.Rename(context.Background(), "ghost", "x"), apperr.ErrNotFound)

	s.fail = errStoreDown
	mustFail(t, e.Rename(context.Background(), "n1", "Other"), apperr.ErrPersistence)
	if n, _ := e.Get("n1"); n.Name != "Groceries" {
		t.Errorf("name changed after failed rename: %q", n.Name)
	}
}

func TestRefresh(t *testing.T) {
	t.Run("picks up external edits and forgets missing ids", func(t *testing.T) {
		s := sampleStore()
		e := loadedEngine(t, s)
		mustSucceed(t, e.Focus("top"))
		mustSucceed(t, e.Cut("n1"))

		s.notes = slices.DeleteFunc(s.notes, func(r models.Record) bool { return r.ID == "top" })
		s.folder("F3", "")
		mustSucceed(t, e.Refresh(context.Background()))

		if _, ok := e.Get("F3"); !ok {
			t.Error("F3 should appear after refresh")
		}
		sess := e.Session()
		if sess.Focused != "" {
			t.Errorf("focused = %q, want cleared", sess.Focused)
		}
		if sess.Cut != "n1" {
			t.Errorf("cut = %q, want n1 kept", sess.Cut)
		}
	})

	t.Run("failure keeps arena", func(t *testing.T) {
		s := sampleStore()
		e := loadedEngine(t, s)
		before := e.Arena()
		s.listErr = errStoreDown

		mustFail(t, e.Refresh(context.Background()), apperr.ErrPersistence)
		if !e.Arena().Equal(before) {
			t.Error("arena replaced after failed refresh")
		}
	})

	t.Run("reports corruption", func(t *testing.T) {
		e := loadedEngine(t, newMemStore().folder("A", "B").folder("B", "A"))
		if e.Report().Clean() {
			t.Error("report should list the quarantined folders")
		}
	})
}

func TestMutations_RejectedWhileBusy(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	s.entered = make(chan struct{})
	s.release = make(chan struct{})

	var wg sync.WaitGroup
	var first Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = e.Move(context.Background(), "top", "F2", false)
	}()

	select {
	case <-s.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first move never reached the store")
	}

	mustFail(t, e.Move(context.Background(), "F2", "F1", false), apperr.ErrBusy)
	mustFail(t, e.Delete(context.Background(), "n1"), apperr.ErrBusy)
	mustFail(t, e.Refresh(context.Background()), apperr.ErrBusy)

	close(s.release)
	wg.Wait()
	mustSucceed(t, first)
	mustCheck(t, e)

	s.entered = nil
	mustSucceed(t, e.Move(context.Background(), "F2", "F1", false))
}

func TestMove_CallerCancellationDoesNotAbortStore(t *testing.T) {
	s := sampleStore()
	e := loadedEngine(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mustSucceed(t, e.Move(ctx, "top", "F2", false))
	if got := parentOf(t, e, "top"); got != "F2" {
		t.Errorf("parent = %q, want F2", got)
	}
}

func TestObserver_SeesCompletedChanges(t *testing.T) {
	var mu sync.Mutex
	var ops []string
	e := loadedEngine(t, sampleStore(), WithObserver(func(c Change) {
		mu.Lock()
		ops = append(ops, c.Op)
		mu.Unlock()
	}))

	mustSucceed(t, e.Move(context.Background(), "top", "F2", false))
	mustFail(t, e.Move(context.Background(), "F1", "F1", false), apperr.ErrSelfMove)
	mustSucceed(t, e.Rename(context.Background(), "F2", "Two"))

	mu.Lock()
	defer mu.Unlock()
	want := []string{OpRefresh, OpMove, OpRename}
	if !slices.Equal(ops, want) {
		t.Errorf("ops = %v, want %v", ops, want)
	}
}
