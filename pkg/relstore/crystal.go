package relstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("relstore: not found")

// CrystalFact is a consolidated fact persisted in L3 (§3, §4.6).
type CrystalFact struct {
	ID         string
	Scope      string
	Content    string
	SourceIDs  []string
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Metadata   map[string]any
}

// CrystalLink is the durable mirror of a pkg/graph.Link (§4.6).
type CrystalLink struct {
	ID        string
	Scope     string
	SourceID  string
	TargetID  string
	LinkType  string
	Weight    float64
	CreatedAt time.Time
}

// InsertCrystalFact persists a newly-consolidated fact.
func (s *Store) InsertCrystalFact(ctx context.Context, f CrystalFact) error {
	sourceIDs, err := json.Marshal(f.SourceIDs)
	if err != nil {
		return fmt.Errorf("relstore: marshal source ids: %w", err)
	}
	metadata, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("relstore: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crystal_facts (id, scope, content, source_ids, confidence, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Scope, f.Content, string(sourceIDs), f.Confidence,
		f.CreatedAt.UnixNano(), f.UpdatedAt.UnixNano(), string(metadata))
	if err != nil {
		return fmt.Errorf("relstore: insert crystal fact: %w", err)
	}
	return nil
}

// ListCrystalFacts returns every consolidated fact in scope.
func (s *Store) ListCrystalFacts(ctx context.Context, scope string) ([]CrystalFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, content, source_ids, confidence, created_at, updated_at, metadata
		FROM crystal_facts WHERE scope = ? ORDER BY created_at ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("relstore: list crystal facts: %w", err)
	}
	defer rows.Close()

	var out []CrystalFact
	for rows.Next() {
		var f CrystalFact
		var sourceIDs, metadata string
		var createdAt, updatedAt int64
		if err := rows.Scan(&f.ID, &f.Scope, &f.Content, &sourceIDs, &f.Confidence, &createdAt, &updatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("relstore: scan crystal fact: %w", err)
		}
		if err := json.Unmarshal([]byte(sourceIDs), &f.SourceIDs); err != nil {
			return nil, fmt.Errorf("relstore: unmarshal source ids: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &f.Metadata); err != nil {
			return nil, fmt.Errorf("relstore: unmarshal metadata: %w", err)
		}
		f.CreatedAt = time.Unix(0, createdAt)
		f.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertCrystalLink persists a link mirror, idempotent on
// UNIQUE(scope, source_id, target_id, link_type) (§4.6). Returns (true, nil)
// if a new row was inserted, (false, nil) if it already existed.
func (s *Store) InsertCrystalLink(ctx context.Context, l CrystalLink) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO crystal_links (id, scope, source_id, target_id, link_type, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Scope, l.SourceID, l.TargetID, l.LinkType, l.Weight, l.CreatedAt.UnixNano())
	if err != nil {
		return false, fmt.Errorf("relstore: insert crystal link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("relstore: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListCrystalLinks returns every persisted link for scope, used to
// rehydrate pkg/graph on startup (§4.6 "Graph rehydration").
func (s *Store) ListCrystalLinks(ctx context.Context, scope string) ([]CrystalLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, source_id, target_id, link_type, weight, created_at
		FROM crystal_links WHERE scope = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("relstore: list crystal links: %w", err)
	}
	defer rows.Close()

	var out []CrystalLink
	for rows.Next() {
		var l CrystalLink
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.Scope, &l.SourceID, &l.TargetID, &l.LinkType, &l.Weight, &createdAt); err != nil {
			return nil, fmt.Errorf("relstore: scan crystal link: %w", err)
		}
		l.CreatedAt = time.Unix(0, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Scopes returns every distinct scope with at least one persisted link,
// used to rehydrate every known scope's graph on engine startup (§6
// "Engine restart must be transparent").
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT scope FROM crystal_links`)
	if err != nil {
		return nil, fmt.Errorf("relstore: list scopes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("relstore: scan scope: %w", err)
		}
		out = append(out, scope)
	}
	return out, rows.Err()
}
