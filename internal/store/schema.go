// Package store persists folders, notes and expansion flags in SQLite or
// Postgres. It implements tree.ItemStore and tree.ExpansionStore.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// The root level is stored as an empty parent_id.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS folders (
	id        TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	title     TEXT NOT NULL DEFAULT '',
	position  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notes (
	id        TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	title     TEXT NOT NULL DEFAULT '',
	position  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);
CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_id);

CREATE TABLE IF NOT EXISTS expansion (
	id       TEXT PRIMARY KEY,
	expanded BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS revision (
	id     INTEGER PRIMARY KEY CHECK (id = 1),
	rev    BIGINT NOT NULL,
	writer TEXT NOT NULL
);
`

// DB wraps a sql.DB with item and expansion operations.
type DB struct {
	conn     *sql.DB
	driver   string
	instance string

	mu  sync.Mutex
	own []int64 // revisions stamped by this instance, ascending
}

// Open opens (or creates) the database and applies the schema. For sqlite3
// dsn is a file path; for pgx it is a connection URL.
func Open(driver, dsn string) (*DB, error) {
	source := dsn
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			source = dsn + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if driver == DriverSQLite {
		// One writer keeps SQLite transactions from tripping over each other.
		conn.SetMaxOpenConns(1)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, driver: driver, instance: uuid.NewString()}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// InstanceID identifies this process as a writer in the revision row.
func (db *DB) InstanceID() string { return db.instance }

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string { return db.driver }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, db.rebind(query), args...)
}

// maxOwnWrites bounds the remembered own revisions when nothing consumes
// them. A forgotten one only costs a redundant reload.
const maxOwnWrites = 4096

// writeTx runs fn in a transaction and bumps the revision row before commit,
// so other processes watching the database can tell that items changed.
// The stamped revision is remembered for OwnWrites.
func (db *DB) writeTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(tx); err != nil {
		return err
	}
	var rev int64
	err = db.queryRow(ctx, tx, `
		INSERT INTO revision (id, rev, writer) VALUES (1, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			rev    = revision.rev + 1,
			writer = excluded.writer
		RETURNING rev
	`, db.instance).Scan(&rev)
	if err != nil {
		return fmt.Errorf("store: bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	db.mu.Lock()
	db.own = append(db.own, rev)
	if len(db.own) > maxOwnWrites {
		db.own = db.own[len(db.own)-maxOwnWrites:]
	}
	db.mu.Unlock()
	return nil
}

// OwnWrites counts the revisions in (after, upTo] that this instance
// stamped and forgets every recorded revision up to upTo.
func (db *DB) OwnWrites(after, upTo int64) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	keep := db.own[:0]
	for _, r := range db.own {
		switch {
		case r > upTo:
			keep = append(keep, r)
		case r > after:
			n++
		}
	}
	db.own = keep
	return n
}

// Revision returns the item revision counter and the instance id of the
// last writer. A database that was never written reports zero.
func (db *DB) Revision(ctx context.Context) (int64, string, error) {
	var rev int64
	var writer string
	err := db.queryRow(ctx, db.conn, `SELECT rev, writer FROM revision WHERE id = 1`).Scan(&rev, &writer)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("store: revision: %w", err)
	}
	return rev, writer, nil
}
