// Package testutil provides shared test helpers for setting up stores and services.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/arbor/internal/store"
	"github.com/starford/arbor/internal/treeservice"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "arbor-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(store.DriverSQLite, dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestService creates a loaded service over a fresh store. Extra options
// are applied after the quiet logger.
func TestService(t *testing.T, opts ...treeservice.Option) (*treeservice.Service, *store.DB) {
	t.Helper()
	db := TestStore(t)
	svc := treeservice.New(db, db, append([]treeservice.Option{treeservice.WithLogger(QuietLogger())}, opts...)...)
	if err := svc.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	return svc, db
}
