// Package store persists entities, types and links in SQLite.
//
// It is the link store adapter the service layer drives: sibling reads and
// index batches run inside a transaction owned by the caller (see InTx).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS link_types (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	plural_title TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entity_types (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	outgoing_links TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	key            TEXT UNIQUE,
	entity_type_id TEXT NOT NULL REFERENCES entity_types(id),
	owned_by_id    TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL DEFAULT '',
	properties     TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	id               TEXT PRIMARY KEY,
	source_entity_id TEXT NOT NULL REFERENCES entities(id),
	link_type_id     TEXT NOT NULL REFERENCES link_types(id),
	target_entity_id TEXT NOT NULL REFERENCES entities(id),
	link_index       INTEGER,
	owned_by_id      TEXT NOT NULL DEFAULT '',
	created_by_id    TEXT NOT NULL DEFAULT '',
	properties       TEXT NOT NULL DEFAULT '{}',
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	archived_at      DATETIME,
	archived_by_id   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_links_group ON links(source_entity_id, link_type_id) WHERE archived_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_entity_id);

-- No two live links of a group may share an index.
CREATE UNIQUE INDEX IF NOT EXISTS uq_links_group_index
	ON links(source_entity_id, link_type_id, link_index)
	WHERE archived_at IS NULL AND link_index IS NOT NULL;

CREATE TABLE IF NOT EXISTS seed_imports (
	path        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps a sql.DB with linkorder persistence operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Write transactions take the database lock at BEGIN (_txlock=immediate) so
// two processes can never interleave a read-modify-write on one group.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Tx is a write transaction handed to InTx callbacks.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise, including when ctx is cancelled.
func (s *Store) InTx(ctx context.Context, fn func(tx GroupTx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isConstraint(err error, codes ...sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.ExtendedCode == c {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, sqlite3.ErrConstraintForeignKey)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
