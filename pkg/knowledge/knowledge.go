// Package knowledge implements the BIEM engine's structured-fact side:
// extraction of subject/predicate/object triples from conversational text,
// conflict detection against previously-stored triples, a confirmation
// lifecycle for conflicting updates, and cluster-expansion retrieval over
// the triple store (§4.11-4.13).
package knowledge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/synapsed/biem/pkg/relstore"
)

// Logger is the logging seam for this package, matching pkg/biem's
// small-interface-over-slog convention.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type slogLogger struct{}

// DefaultLogger returns a Logger backed by the standard library's slog
// default handler.
func DefaultLogger() Logger { return slogLogger{} }

func (slogLogger) Debugf(format string, args ...any) {
	slog.Debug("knowledge: " + fmt.Sprintf(format, args...))
}
func (slogLogger) Infof(format string, args ...any) {
	slog.Info("knowledge: " + fmt.Sprintf(format, args...))
}
func (slogLogger) Warnf(format string, args ...any) {
	slog.Warn("knowledge: " + fmt.Sprintf(format, args...))
}
func (slogLogger) Errorf(format string, args ...any) {
	slog.Error("knowledge: " + fmt.Sprintf(format, args...))
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func orDefault(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// Triple is the knowledge engine's subject/predicate/object fact, backed by
// relstore's relational row (§3).
type Triple = relstore.KnowledgeTriple

// ConflictResult is C12 ConflictDetector's verdict for one newly-extracted
// triple (§4.12).
type ConflictResult struct {
	HasConflict  bool
	Existing     Triple
	New          Triple
	ConflictType string
	Suggestion   string
}

// PendingUpdate is a conflicting triple update awaiting explicit user
// confirmation, purged on confirm, reject, or expiry (§3, §4.12, §4.13
// lifecycle: "created -> (confirmed | rejected | expired)").
type PendingUpdate struct {
	ID        string
	New       Triple
	Existing  Triple
	Prompt    string
	ExpiresAt time.Time
}

// ProcessResult is returned by Engine.Process: triples stored immediately
// plus any PendingUpdates surfaced for user confirmation (§6 "Public API
// surface": "knowledge.process(message, role) -> {stored, pending}").
type ProcessResult struct {
	Stored  []Triple
	Pending []PendingUpdate
}

// Scored pairs a triple with a retrieval score (§4.13).
type Scored struct {
	Triple Triple
	Score  float64
}
