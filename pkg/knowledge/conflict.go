package knowledge

import "context"

// Detector is C12 ConflictDetector: for each surviving extracted triple,
// checks whether a differing triple already exists for the same (subject,
// predicate) (§4.12).
type Detector struct {
	store *Store
}

// NewDetector builds a Detector over store.
func NewDetector(store *Store) *Detector {
	return &Detector{store: store}
}

// Check looks up t.Subject/t.Predicate and reports a conflict if an
// existing triple is found with a different object. An identical object is
// not a conflict — re-asserting the same fact is a no-op, not an update.
func (d *Detector) Check(ctx context.Context, t Triple) (ConflictResult, error) {
	existing, err := d.store.FindPotentialConflicts(ctx, t.Subject, t.Predicate)
	if err != nil {
		return ConflictResult{}, err
	}
	if existing == nil || existing.Object == t.Object {
		return ConflictResult{New: t}, nil
	}
	return ConflictResult{
		HasConflict:  true,
		Existing:     *existing,
		New:          t,
		ConflictType: "value_change",
		Suggestion:   existing.Subject + " " + existing.Predicate + " changed from \"" + existing.Object + "\" to \"" + t.Object + "\"",
	}, nil
}
