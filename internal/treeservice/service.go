// Package treeservice puts one tree engine behind the HTTP, MCP and watcher
// surfaces. It validates client input, serialises snapshots and publishes
// every completed change.
package treeservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/tree"
)

const (
	busyRetries = 5
	busyBackoff = 100 * time.Millisecond
)

// Publisher receives completed tree changes, e.g. the SSE broker.
type Publisher interface {
	PublishTreeEvent(op string, ids []string)
}

// forgetter is implemented by expansion backends that keep flags apart from
// the item rows and must be told when folders disappear.
type forgetter interface {
	Forget(ctx context.Context, ids ...string) error
}

// Snapshot is the serialised nested tree plus the last build report.
type Snapshot struct {
	Root   *models.TreeNode `json:"root"`
	Report tree.BuildReport `json:"report"`
}

// KeyHelp describes one key binding.
type KeyHelp struct {
	Keys        []string `json:"keys"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
}

// Service coordinates the tree engine with its publishers.
type Service struct {
	engine    *tree.Engine
	expansion tree.ExpansionStore
	pub       Publisher
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*config)

type config struct {
	pub    Publisher
	logger *slog.Logger
	keys   *tree.KeyMap
}

// WithPublisher sets where completed changes are published.
func WithPublisher(p Publisher) Option {
	return func(c *config) { c.pub = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithKeyMap replaces the default key bindings.
func WithKeyMap(k tree.KeyMap) Option {
	return func(c *config) { c.keys = &k }
}

// New creates a service over an unloaded engine. Call Load before use.
func New(items tree.ItemStore, expansion tree.ExpansionStore, opts ...Option) *Service {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Service{expansion: expansion, pub: cfg.pub, logger: cfg.logger}

	engineOpts := []tree.Option{tree.WithLogger(cfg.logger), tree.WithObserver(s.observe)}
	if cfg.keys != nil {
		engineOpts = append(engineOpts, tree.WithKeyMap(*cfg.keys))
	}
	s.engine = tree.NewEngine(items, expansion, engineOpts...)
	return s
}

func (s *Service) observe(c tree.Change) {
	if s.pub != nil {
		s.pub.PublishTreeEvent(c.Op, c.IDs)
	}
	if c.Op != tree.OpDelete {
		return
	}
	if f, ok := s.expansion.(forgetter); ok {
		if err := f.Forget(context.Background(), c.IDs...); err != nil {
			s.logger.Warn("treeservice: forget expansion failed", slog.String("error", err.Error()))
		}
	}
}

// Engine exposes the underlying engine.
func (s *Service) Engine() *tree.Engine { return s.engine }

// Load performs the initial build. Corrupted rows are logged, not fatal.
func (s *Service) Load(ctx context.Context) error {
	res := s.engine.Refresh(ctx)
	if !res.Success {
		return res.Err
	}
	if report := s.engine.Report(); !report.Clean() {
		s.logger.Warn("treeservice: store holds corrupted rows",
			slog.Int("quarantined", len(report.Quarantined)),
			slog.Int("orphans", len(report.Orphans)),
			slog.Int("duplicates", len(report.Duplicates)))
	}
	s.logger.Info("treeservice: loaded", slog.String("result", res.Message))
	return nil
}

// Tree returns the JSON encoding of the current snapshot and its checksum.
func (s *Service) Tree() ([]byte, string, error) {
	snap := Snapshot{Root: s.engine.Arena().Snapshot(), Report: s.engine.Report()}
	return checksum.SumJSON(snap)
}

// Check verifies the structural invariants of the cached tree.
func (s *Service) Check() error { return s.engine.Arena().Check() }

// Rows returns the visible rows.
func (s *Service) Rows() []models.Row { return s.engine.Rows() }

// Session returns the current view state.
func (s *Service) Session() tree.Session { return s.engine.Session() }

// Keys lists the active key bindings.
func (s *Service) Keys() []KeyHelp {
	bindings := s.engine.KeyMap().Help()
	out := make([]KeyHelp, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, KeyHelp{Keys: b.Keys(), Label: b.Help().Key, Description: b.Help().Desc})
	}
	return out
}

func rejected(err error) tree.Result {
	return tree.Result{Success: false, Message: err.Error(), Err: err}
}

// Create inserts a new item.
func (s *Service) Create(ctx context.Context, in CreateInput) tree.Result {
	if err := in.Validate(); err != nil {
		return rejected(invalid(err))
	}
	return s.engine.Insert(ctx, in.ParentID, in.Name, in.Kind)
}

// Rename changes the title of id.
func (s *Service) Rename(ctx context.Context, id string, in RenameInput) tree.Result {
	if err := in.Validate(); err != nil {
		return rejected(invalid(err))
	}
	return s.engine.Rename(ctx, id, in.Name)
}

// Move drops id onto a target or onto the root level.
func (s *Service) Move(ctx context.Context, id string, in MoveInput) tree.Result {
	if err := in.Validate(); err != nil {
		return rejected(invalid(err))
	}
	return s.engine.Move(ctx, id, in.TargetID, in.ToRoot)
}

// Promote moves id one level up.
func (s *Service) Promote(ctx context.Context, id string) tree.Result {
	return s.engine.Promote(ctx, id)
}

// Delete removes id and its subtree.
func (s *Service) Delete(ctx context.Context, id string) tree.Result {
	return s.engine.Delete(ctx, id)
}

// Cut marks id for a later Paste.
func (s *Service) Cut(id string) tree.Result { return s.engine.Cut(id) }

// Paste moves the cut item onto the focused item.
func (s *Service) Paste(ctx context.Context) tree.Result { return s.engine.Paste(ctx) }

// Click handles a primary click on id.
func (s *Service) Click(ctx context.Context, id string) (tree.Action, tree.Result) {
	return s.engine.OnClick(ctx, id)
}

// Toggle flips the expand flag of folder id.
func (s *Service) Toggle(ctx context.Context, id string) tree.Result {
	return s.engine.ToggleExpanded(ctx, id)
}

// ContextMenu opens a context menu on id.
func (s *Service) ContextMenu(id string, in ContextMenuInput) (tree.Action, tree.Result) {
	if err := in.Validate(); err != nil {
		return tree.Action{}, rejected(invalid(err))
	}
	return s.engine.OnContextMenu(id, in.X, in.Y)
}

// Key handles one key press.
func (s *Service) Key(ctx context.Context, in KeyInput) (tree.Action, tree.Result) {
	if err := in.Validate(); err != nil {
		return tree.Action{}, rejected(invalid(err))
	}
	if in.HasFocus != nil {
		s.engine.SetInputFocus(*in.HasFocus)
	}
	return s.engine.OnKeyDown(ctx, tree.Key(in.Key))
}

// Reveal expands the ancestors of an externally selected id.
func (s *Service) Reveal(ctx context.Context, id string) tree.Result {
	return s.engine.Reveal(ctx, id)
}

// Refresh rebuilds the tree from the store.
func (s *Service) Refresh(ctx context.Context) tree.Result {
	return s.engine.Refresh(ctx)
}

// OnExternalChange rebuilds the tree after another process wrote the store.
// While a local mutation holds the engine the refresh is retried a few times.
func (s *Service) OnExternalChange(ctx context.Context, rev int64) {
	for attempt := 0; ; attempt++ {
		res := s.engine.Refresh(ctx)
		switch {
		case res.Success:
			s.logger.Info("treeservice: reloaded after external change", slog.Int64("rev", rev))
			return
		case !errors.Is(res.Err, apperr.ErrBusy):
			s.logger.Warn("treeservice: reload failed", slog.Int64("rev", rev), slog.String("error", res.Message))
			return
		case attempt >= busyRetries:
			s.logger.Warn("treeservice: reload skipped, engine busy", slog.Int64("rev", rev))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(busyBackoff):
		}
	}
}
