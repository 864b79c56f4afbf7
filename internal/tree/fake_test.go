package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/starford/arbor/internal/models"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory ItemStore and ExpansionStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	folders []models.Record
	notes   []models.Record
	flags   map[string]bool
	nextID  int
	calls   int
	fail    error
	listErr error
	// entered, when set, is signalled as a store call starts; release then
	// blocks that call until the test lets it go.
	entered chan struct{}
	release chan struct{}
	// promoteTo overrides the parent PromoteItem reports.
	promoteTo *string
}

func newMemStore() *memStore {
	return &memStore{flags: make(map[string]bool)}
}

func (m *memStore) folder(id, parent string) *memStore {
	m.folders = append(m.folders, models.Record{ID: id, ParentID: parent, Name: id})
	return m
}

func (m *memStore) note(id, parent string) *memStore {
	m.notes = append(m.notes, models.Record{ID: id, ParentID: parent, Name: id})
	return m
}

func (m *memStore) enter() error {
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	return nil
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memStore) setParent(id, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.folders {
		if m.folders[i].ID == id {
			m.folders[i].ParentID = parent
		}
	}
	for i := range m.notes {
		if m.notes[i].ID == id {
			m.notes[i].ParentID = parent
		}
	}
}

func (m *memStore) ListItems(context.Context) ([]models.Record, []models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, nil, m.listErr
	}
	return append([]models.Record(nil), m.folders...), append([]models.Record(nil), m.notes...), nil
}

func (m *memStore) CreateItem(_ context.Context, kind models.Kind, title, parentID string) (string, error) {
	if err := m.enter(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("new%d", m.nextID)
	rec := models.Record{ID: id, ParentID: parentID, Name: title}
	if kind == models.KindFolder {
		m.folders = append(m.folders, rec)
	} else {
		m.notes = append(m.notes, rec)
	}
	return id, nil
}

func (m *memStore) MoveItem(_ context.Context, id, parentID, _ string) error {
	if err := m.enter(); err != nil {
		return err
	}
	m.setParent(id, parentID)
	return nil
}

func (m *memStore) MoveItemToRoot(_ context.Context, id string) error {
	if err := m.enter(); err != nil {
		return err
	}
	m.setParent(id, models.RootID)
	return nil
}

func (m *memStore) PromoteItem(_ context.Context, id string) (string, error) {
	if err := m.enter(); err != nil {
		return "", err
	}
	m.mu.Lock()
	parents := make(map[string]string)
	for _, f := range m.folders {
		parents[f.ID] = f.ParentID
	}
	for _, n := range m.notes {
		parents[n.ID] = n.ParentID
	}
	target := parents[parents[id]]
	if m.promoteTo != nil {
		target = *m.promoteTo
	}
	m.mu.Unlock()
	m.setParent(id, target)
	return target, nil
}

func (m *memStore) DeleteItem(_ context.Context, id string) error {
	if err := m.enter(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := func(rs []models.Record) []models.Record {
		var out []models.Record
		for _, r := range rs {
			if r.ID != id {
				out = append(out, r)
			}
		}
		return out
	}
	m.folders = keep(m.folders)
	m.notes = keep(m.notes)
	return nil
}

func (m *memStore) RenameItem(_ context.Context, id, title string) error {
	if err := m.enter(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.folders {
		if m.folders[i].ID == id {
			m.folders[i].Name = title
		}
	}
	for i := range m.notes {
		if m.notes[i].ID == id {
			m.notes[i].Name = title
		}
	}
	return nil
}

func (m *memStore) GetExpansion(context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SetExpansion(_ context.Context, flags map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range flags {
		m.flags[k] = v
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadedEngine builds an engine over s and loads it.
func loadedEngine(t *testing.T, s *memStore, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(s, s, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if res := e.Refresh(context.Background()); !res.Success {
		t.Fatalf("Refresh: %s", res.Message)
	}
	return e
}

func mustSucceed(t *testing.T, res Result) {
	t.Helper()
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
}

func mustFail(t *testing.T, res Result, kind error) {
	t.Helper()
	if res.Success {
		t.Fatalf("expected failure, got success: %s", res.Message)
	}
	if kind != nil && !errors.Is(res.Err, kind) {
		t.Fatalf("error = %v, want %v", res.Err, kind)
	}
}

func mustCheck(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Arena().Check(); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}
}
