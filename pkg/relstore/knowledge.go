package relstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConflict is returned by InsertTriple when a row already exists for
// (subject, predicate) — the expected "conflict" error kind of §7.4, never
// surfaced to the BIEM caller as a failure but used internally to route
// into the confirmation flow.
var ErrConflict = errors.New("relstore: triple already exists for (subject, predicate)")

// KnowledgeTriple mirrors the data model of §3 (global scope, no isolation
// key).
type KnowledgeTriple struct {
	ID             string
	Subject        string
	Predicate      string
	Object         string
	Confidence     float64
	Source         string
	Version        int
	PreviousValues []string
	ContributorID  string
	SessionID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KnowledgeHistory is one row of the append-only change log (§3).
type KnowledgeHistory struct {
	ID            string
	TripleID      string
	OldObject     string
	NewObject     string
	Reason        string
	Confirmed     bool
	ContributorID string
	CreatedAt     time.Time
}

// InsertTriple inserts a brand-new triple at version 1. Returns ErrConflict
// if a row already exists for (subject, predicate) — the caller (C12
// ConfirmationManager) is expected to have already checked
// FindBySubjectPredicate before calling this, so a conflict here indicates
// a race between concurrent extractions of the same fact.
func (s *Store) InsertTriple(ctx context.Context, t KnowledgeTriple) error {
	prev, err := json.Marshal(t.PreviousValues)
	if err != nil {
		return fmt.Errorf("relstore: marshal previous values: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_triples
			(id, subject, predicate, object, confidence, source, version, previous_values, contributor_id, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Subject, t.Predicate, t.Object, t.Confidence, t.Source, t.Version,
		string(prev), t.ContributorID, t.SessionID, t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("relstore: insert triple: %w", err)
	}
	return nil
}

// FindBySubjectPredicate returns the triple for (subject, predicate), or
// ErrNotFound.
func (s *Store) FindBySubjectPredicate(ctx context.Context, subject, predicate string) (KnowledgeTriple, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, predicate, object, confidence, source, version, previous_values, contributor_id, session_id, created_at, updated_at
		FROM knowledge_triples WHERE subject = ? AND predicate = ?`, subject, predicate)
	return scanTriple(row)
}

// GetTriple returns the triple by id, or ErrNotFound.
func (s *Store) GetTriple(ctx context.Context, id string) (KnowledgeTriple, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, predicate, object, confidence, source, version, previous_values, contributor_id, session_id, created_at, updated_at
		FROM knowledge_triples WHERE id = ?`, id)
	return scanTriple(row)
}

func scanTriple(row *sql.Row) (KnowledgeTriple, error) {
	var t KnowledgeTriple
	var prev string
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.Subject, &t.Predicate, &t.Object, &t.Confidence, &t.Source,
		&t.Version, &prev, &t.ContributorID, &t.SessionID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KnowledgeTriple{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: scan triple: %w", err)
	}
	if err := json.Unmarshal([]byte(prev), &t.PreviousValues); err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: unmarshal previous values: %w", err)
	}
	t.CreatedAt = time.Unix(0, createdAt)
	t.UpdatedAt = time.Unix(0, updatedAt)
	return t, nil
}

// UpdateObject applies a confirmed object change: bumps version, prepends
// the old object to previous_values, and writes a knowledge_history row,
// all within one transaction (§4.12 "On confirm").
func (s *Store) UpdateObject(ctx context.Context, id, newObject, reason, contributorID string, confirmed bool, now time.Time) (KnowledgeTriple, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, subject, predicate, object, confidence, source, version, previous_values, contributor_id, session_id, created_at, updated_at
		FROM knowledge_triples WHERE id = ?`, id)
	existing, err := scanTriple(row)
	if err != nil {
		return KnowledgeTriple{}, err
	}

	oldObject := existing.Object
	existing.PreviousValues = append([]string{oldObject}, existing.PreviousValues...)
	existing.Object = newObject
	existing.Version = len(existing.PreviousValues) + 1
	existing.UpdatedAt = now

	prev, err := json.Marshal(existing.PreviousValues)
	if err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: marshal previous values: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE knowledge_triples SET object = ?, version = ?, previous_values = ?, updated_at = ?
		WHERE id = ?`, existing.Object, existing.Version, string(prev), existing.UpdatedAt.UnixNano(), id)
	if err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: update triple: %w", err)
	}

	hist := KnowledgeHistory{
		ID:            id + "-h" + fmt.Sprint(existing.Version-1),
		TripleID:      id,
		OldObject:     oldObject,
		NewObject:     newObject,
		Reason:        reason,
		Confirmed:     confirmed,
		ContributorID: contributorID,
		CreatedAt:     now,
	}
	confirmedInt := 0
	if hist.Confirmed {
		confirmedInt = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO knowledge_history (id, triple_id, old_object, new_object, reason, confirmed, contributor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hist.ID, hist.TripleID, hist.OldObject, hist.NewObject, hist.Reason, confirmedInt, hist.ContributorID, hist.CreatedAt.UnixNano())
	if err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: insert history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return KnowledgeTriple{}, fmt.Errorf("relstore: commit: %w", err)
	}
	return existing, nil
}

// HistoryForTriple returns every history row for tripleID, used by the
// (Versioning) testable property in §8.
func (s *Store) HistoryForTriple(ctx context.Context, tripleID string) ([]KnowledgeHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, triple_id, old_object, new_object, reason, confirmed, contributor_id, created_at
		FROM knowledge_history WHERE triple_id = ? ORDER BY created_at ASC`, tripleID)
	if err != nil {
		return nil, fmt.Errorf("relstore: history for triple: %w", err)
	}
	defer rows.Close()

	var out []KnowledgeHistory
	for rows.Next() {
		var h KnowledgeHistory
		var confirmed int
		var createdAt int64
		if err := rows.Scan(&h.ID, &h.TripleID, &h.OldObject, &h.NewObject, &h.Reason, &confirmed, &h.ContributorID, &createdAt); err != nil {
			return nil, fmt.Errorf("relstore: scan history: %w", err)
		}
		h.Confirmed = confirmed != 0
		h.CreatedAt = time.Unix(0, createdAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteAllTriples is the administrative reset path (§3 "Lifecycle":
// "Triples are ... never deleted except by administrative reset").
func (s *Store) DeleteAllTriples(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_history`)
	if err != nil {
		return fmt.Errorf("relstore: delete history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM knowledge_triples`)
	if err != nil {
		return fmt.Errorf("relstore: delete triples: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint violations with this substring
	// in the driver error message; there is no typed sentinel exported.
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
