// Package relstore implements the C6 Crystal and C11 KnowledgeStore
// relational tables on SQLite, the one backend in this module whose
// uniqueness constraints (UNIQUE(scope, source_id, target_id, link_type) and
// the global UNIQUE(subject, predicate)) cannot be cleanly enforced by the
// path-keyed pkg/kv store.
package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding the BIEM relational tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists. path may be ":memory:" for ephemeral use in
// tests.
//
// The WAL/synchronous/busy-timeout DSN parameters and connection
// pool tuning mirror a known-good SQLite-over-database/sql configuration
// for a single-process, moderate-write workload.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("relstore: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS crystal_facts (
		id          TEXT PRIMARY KEY,
		scope       TEXT NOT NULL,
		content     TEXT NOT NULL,
		source_ids  TEXT NOT NULL,
		confidence  REAL NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_crystal_facts_scope ON crystal_facts(scope);

	CREATE TABLE IF NOT EXISTS crystal_links (
		id          TEXT PRIMARY KEY,
		scope       TEXT NOT NULL,
		source_id   TEXT NOT NULL,
		target_id   TEXT NOT NULL,
		link_type   TEXT NOT NULL,
		weight      REAL NOT NULL,
		created_at  INTEGER NOT NULL,
		UNIQUE(scope, source_id, target_id, link_type)
	);
	CREATE INDEX IF NOT EXISTS idx_crystal_links_scope ON crystal_links(scope);

	CREATE TABLE IF NOT EXISTS knowledge_triples (
		id              TEXT PRIMARY KEY,
		subject         TEXT NOT NULL,
		predicate       TEXT NOT NULL,
		object          TEXT NOT NULL,
		confidence      REAL NOT NULL,
		source          TEXT NOT NULL,
		version         INTEGER NOT NULL,
		previous_values TEXT NOT NULL DEFAULT '[]',
		contributor_id  TEXT NOT NULL DEFAULT '',
		session_id      TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		UNIQUE(subject, predicate)
	);

	CREATE TABLE IF NOT EXISTS knowledge_history (
		id             TEXT PRIMARY KEY,
		triple_id      TEXT NOT NULL,
		old_object     TEXT NOT NULL,
		new_object     TEXT NOT NULL,
		reason         TEXT NOT NULL,
		confirmed      INTEGER NOT NULL,
		contributor_id TEXT NOT NULL DEFAULT '',
		created_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_history_triple ON knowledge_history(triple_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("relstore: create tables: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw query
// access.
func (s *Store) DB() *sql.DB {
	return s.db
}
