package knowledge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synapsed/biem/pkg/relstore"
)

// ErrPendingNotFound is returned by Confirm for an unknown or already-
// resolved pending update id.
var ErrPendingNotFound = errors.New("knowledge: pending update not found")

// ErrPendingExpired is returned by Confirm when the pending update's expiry
// has already passed; the update is purged and discarded either way (§3,
// §4.12 "On reject or expiry: discard").
var ErrPendingExpired = errors.New("knowledge: pending update expired")

// Manager is C12 ConfirmationManager: routes each surviving extracted
// triple either straight into the store or into a time-boxed PendingUpdate
// awaiting explicit user confirmation (§4.12).
type Manager struct {
	store      *Store
	detector   *Detector
	autoStore  bool
	pendingTTL time.Duration

	mu      sync.Mutex
	pending map[string]PendingUpdate

	log Logger
}

// NewManager builds a Manager. pendingTTL is the PendingUpdate expiry
// window (300s default per §6).
func NewManager(store *Store, detector *Detector, autoStore bool, pendingTTL time.Duration, log Logger) *Manager {
	return &Manager{
		store:      store,
		detector:   detector,
		autoStore:  autoStore,
		pendingTTL: pendingTTL,
		pending:    make(map[string]PendingUpdate),
		log:        orDefault(log),
	}
}

// Process runs the confirmation step over a batch of already-filtered
// extracted triples (§4.12, §6 "knowledge.process(message, role) ->
// {stored, pending}"). now is injected rather than read internally so
// expiry computation is deterministic under test.
func (m *Manager) Process(ctx context.Context, triples []extractedTriple, source, sessionID, contributorID string, now time.Time) (ProcessResult, error) {
	var result ProcessResult
	for _, et := range triples {
		t := Triple{
			ID:         uuid.NewString(),
			Subject:    et.Subject,
			Predicate:  et.Predicate,
			Object:     et.Object,
			Confidence: et.Confidence,
			Source:     source,
			Version:    1,
			ContributorID: contributorID,
			SessionID:  sessionID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		conflict, err := m.detector.Check(ctx, t)
		if err != nil {
			m.log.Warnf("process: conflict check for %s/%s: %v", t.Subject, t.Predicate, err)
			continue
		}

		if !conflict.HasConflict {
			if !m.autoStore {
				continue
			}
			if err := m.store.Insert(ctx, t); err != nil {
				if errors.Is(err, relstore.ErrConflict) {
					// Lost a race with a concurrent extraction; re-resolve
					// against whatever is now stored instead of failing.
					existing, lookupErr := m.store.FindBySubjectPredicate(ctx, t.Subject, t.Predicate)
					if lookupErr == nil {
						m.openPending(t, existing, now)
					}
					continue
				}
				m.log.Warnf("process: insert triple %s/%s: %v", t.Subject, t.Predicate, err)
				continue
			}
			result.Stored = append(result.Stored, t)
			continue
		}

		result.Pending = append(result.Pending, m.openPending(t, conflict.Existing, now))
	}
	return result, nil
}

func (m *Manager) openPending(newTriple, existing Triple, now time.Time) PendingUpdate {
	pu := PendingUpdate{
		ID:        uuid.NewString(),
		New:       newTriple,
		Existing:  existing,
		Prompt:    existing.Subject + " " + existing.Predicate + " was \"" + existing.Object + "\"; update to \"" + newTriple.Object + "\"?",
		ExpiresAt: now.Add(m.pendingTTL),
	}
	m.mu.Lock()
	m.pending[pu.ID] = pu
	m.mu.Unlock()
	return pu
}

// Confirm resolves a pending update. accept=false (or an already-expired
// entry) discards it; accept=true applies the object change via
// KnowledgeStore.UpdateObject, bumping the version and writing history
// (§4.12 "On confirm").
func (m *Manager) Confirm(ctx context.Context, pendingID string, accept bool, now time.Time) (*Triple, error) {
	m.mu.Lock()
	pu, ok := m.pending[pendingID]
	if ok {
		delete(m.pending, pendingID)
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrPendingNotFound
	}
	if now.After(pu.ExpiresAt) {
		return nil, ErrPendingExpired
	}
	if !accept {
		return nil, nil
	}

	updated, err := m.store.UpdateObject(ctx, pu.Existing.ID, pu.New.Object, "user_confirmed", pu.New.ContributorID, true)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// List returns every still-live pending update, purging any that have
// expired since they were created (§9 "enforced by expiry comparison on
// every confirm or list call and by a periodic sweep").
func (m *Manager) List(now time.Time) []PendingUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingUpdate
	for id, pu := range m.pending {
		if now.After(pu.ExpiresAt) {
			delete(m.pending, id)
			continue
		}
		out = append(out, pu)
	}
	return out
}

// SweepExpired purges every expired pending update without returning them,
// for use by a periodic background task (§9).
func (m *Manager) SweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, pu := range m.pending {
		if now.After(pu.ExpiresAt) {
			delete(m.pending, id)
			purged++
		}
	}
	return purged
}
