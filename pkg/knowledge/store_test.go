package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsed/biem/pkg/relstore"
	"github.com/synapsed/biem/pkg/vecstore"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

func newTestStore(t *testing.T, embedVec []float32) (*Store, *relstore.Store) {
	t.Helper()
	rel, err := relstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { rel.Close() })
	var embedder *fakeEmbedder
	if embedVec != nil {
		embedder = &fakeEmbedder{vec: embedVec}
	}
	var store *Store
	if embedder != nil {
		store = NewStore(rel, vecstore.NewMemory(), embedder, nil)
	} else {
		store = NewStore(rel, vecstore.NewMemory(), nil, nil)
	}
	return store, rel
}

func TestStoreInsertAndFindBySubjectPredicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, []float32{1, 0})

	tr := Triple{ID: "t1", Subject: "coffee", Predicate: "roast_level", Object: "dark", Version: 1}
	require.NoError(t, store.Insert(ctx, tr))

	got, err := store.FindBySubjectPredicate(ctx, "coffee", "roast_level")
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Object)
}

func TestStoreInsertConflictsOnDuplicateSubjectPredicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, []float32{1, 0})

	tr1 := Triple{ID: "t1", Subject: "coffee", Predicate: "roast_level", Object: "dark", Version: 1}
	tr2 := Triple{ID: "t2", Subject: "coffee", Predicate: "roast_level", Object: "light", Version: 1}
	require.NoError(t, store.Insert(ctx, tr1))
	err := store.Insert(ctx, tr2)
	assert.ErrorIs(t, err, relstore.ErrConflict)
}

func TestStoreFindPotentialConflictsReturnsNilWhenAbsent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, []float32{1, 0})

	existing, err := store.FindPotentialConflicts(ctx, "coffee", "roast_level")
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestStoreUpdateObjectBumpsVersionAndWritesHistory(t *testing.T) {
	ctx := context.Background()
	store, rel := newTestStore(t, []float32{1, 0})

	tr := Triple{ID: "t1", Subject: "coffee", Predicate: "roast_level", Object: "dark", Version: 1}
	require.NoError(t, store.Insert(ctx, tr))

	updated, err := store.UpdateObject(ctx, "t1", "medium", "user_confirmed", "contrib-1", true)
	require.NoError(t, err)
	assert.Equal(t, "medium", updated.Object)
	assert.Equal(t, 2, updated.Version)

	hist, err := rel.HistoryForTriple(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "dark", hist[0].OldObject)
	assert.Equal(t, "medium", hist[0].NewObject)
}

func TestStoreSearchByVectorFiltersByMinScore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	store.embedder = &fakeEmbedder{vec: []float32{1, 0}}

	require.NoError(t, store.Insert(ctx, Triple{ID: "t1", Subject: "coffee", Predicate: "roast_level", Object: "dark", Version: 1}))

	hits, err := store.SearchByVector(ctx, []float32{1, 0}, 5, 0.99)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t1", hits[0].Triple.ID)

	hits, err = store.SearchByVector(ctx, []float32{1, 0}, 5, 1.5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStoreSearchByVectorEmptyIndexReturnsNil(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, []float32{1, 0})

	hits, err := store.SearchByVector(ctx, []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestStoreDeleteAllRemovesTriplesAndHistory(t *testing.T) {
	ctx := context.Background()
	store, rel := newTestStore(t, []float32{1, 0})

	require.NoError(t, store.Insert(ctx, Triple{ID: "t1", Subject: "coffee", Predicate: "roast_level", Object: "dark", Version: 1}))
	_, err := store.UpdateObject(ctx, "t1", "medium", "user_confirmed", "contrib-1", true)
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(ctx))

	_, err = store.FindBySubjectPredicate(ctx, "coffee", "roast_level")
	assert.ErrorIs(t, err, relstore.ErrNotFound)

	hist, err := rel.HistoryForTriple(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}
