// Package watch notices writes to the SQLite item database made by other
// processes and reports them so the tree can be rebuilt.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for file activity to settle.
const DefaultDebounce = 200 * time.Millisecond

// RevisionSource reports the item revision counter and its last writer, and
// how many revisions in a range were stamped by this process.
type RevisionSource interface {
	Revision(ctx context.Context) (int64, string, error)
	OwnWrites(after, upTo int64) int64
}

// Callback is invoked after a foreign write moved the revision to rev.
type Callback func(rev int64)

// Options configure Watch.
type Options struct {
	// DBPath is the SQLite file. Its directory is watched so the -wal and
	// -shm companions are seen as well.
	DBPath   string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watch blocks until ctx is cancelled, calling cb once per settled burst of
// file activity that advanced the revision on behalf of another writer.
func Watch(ctx context.Context, src RevisionSource, opts Options, cb Callback) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, base := filepath.Split(filepath.Clean(opts.DBPath))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return err
	}

	last, _, err := src.Revision(ctx)
	if err != nil {
		logger.Warn("watch: initial revision failed", slog.String("error", err.Error()))
	}
	logger.Info("watch: started", slog.String("db", opts.DBPath))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watch: stopped")
			return nil

		case <-fire:
			rev, writer, err := src.Revision(ctx)
			if err != nil {
				logger.Warn("watch: read revision failed", slog.String("error", err.Error()))
				continue
			}
			if rev == last {
				continue
			}
			prev := last
			last = rev
			// Skip only when every bump since prev was our own.
			if own := src.OwnWrites(prev, rev); rev > prev && rev-prev <= own {
				continue
			}
			logger.Debug("watch: foreign write", slog.String("writer", writer), slog.Int64("rev", rev))
			if cb != nil {
				cb(rev)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}
