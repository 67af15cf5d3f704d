package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/docrecord"
	"vantage/internal/persistence/databases"
)

// memSearch is a deterministic in-memory FullTextSearch double.
type memSearch struct {
	order     []string
	fail      bool
	gotFilter map[string]string
}

func (m *memSearch) Index(ctx context.Context, id, text string, md map[string]string) error {
	m.order = append(m.order, id)
	return nil
}
func (m *memSearch) Remove(ctx context.Context, id string) error { return nil }
func (m *memSearch) Search(ctx context.Context, query string, limit int, filter map[string]string) ([]databases.SearchResult, error) {
	m.gotFilter = filter
	if m.fail {
		return nil, errors.New("bm25 backend unavailable")
	}
	out := make([]databases.SearchResult, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, databases.SearchResult{ID: id, Score: 1, Snippet: "..."})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// memVector is a deterministic in-memory VectorStore double returning a
// fixed rank order regardless of the query vector.
type memVector struct {
	order []string
	fail  bool
}

func (m *memVector) Upsert(ctx context.Context, id string, v []float32, md map[string]string) error {
	m.order = append(m.order, id)
	return nil
}
func (m *memVector) Delete(ctx context.Context, id string) error { return nil }
func (m *memVector) SimilaritySearch(ctx context.Context, v []float32, k int, filter map[string]string) ([]databases.VectorResult, error) {
	if m.fail {
		return nil, errors.New("vector backend unavailable")
	}
	out := make([]databases.VectorResult, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, databases.VectorResult{ID: id, Score: 0.9})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func rec(id string) docrecord.Record {
	return docrecord.Record{ID: id, DetailedSummary: "summary " + id, EmbeddingOK: true, VectorEmbedding: []float32{0.1, 0.2}}
}

func TestIndexDocumentAndGetDocument(t *testing.T) {
	a := New(&memSearch{}, &memVector{})
	require.False(t, a.DocumentExists("d1"))
	require.NoError(t, a.IndexDocument(context.Background(), rec("d1")))
	require.True(t, a.DocumentExists("d1"))
	require.Equal(t, "d1", a.GetDocument("d1").ID)
	require.Nil(t, a.GetDocument("missing"))
}

func TestHybridSearchFuseRRFOrdering(t *testing.T) {
	// bm25 ranks b,a,c ; vector ranks a,c,b -> a should win since it's
	// top-of-list on the heavier-weighted vector side plus present in bm25.
	search := &memSearch{order: []string{"b", "a", "c"}}
	vector := &memVector{order: []string{"a", "c", "b"}}
	a := New(search, vector)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, a.IndexDocument(context.Background(), rec(id)))
	}

	res, err := a.HybridSearch(context.Background(), "query", []float32{0.1, 0.2}, 3, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "a", res[0].ID)
}

func TestHybridSearchThreadsFiltersIntoBM25Arm(t *testing.T) {
	// spec §8 scenario 1: a ".pdf" filter must constrain the keyword arm,
	// not just the vector kNN arm.
	search := &memSearch{order: []string{"a"}}
	vector := &memVector{order: []string{"a"}}
	a := New(search, vector)
	require.NoError(t, a.IndexDocument(context.Background(), rec("a")))

	_, err := a.HybridSearch(context.Background(), "budget", []float32{0.1, 0.2}, 3, Filters{"file_type": []string{".pdf"}})
	require.NoError(t, err)
	require.Equal(t, ".pdf", search.gotFilter["file_type"])
}

func TestHybridSearchFallsBackToVectorOnlyWhenBM25Fails(t *testing.T) {
	search := &memSearch{order: []string{"a", "b"}, fail: true}
	vector := &memVector{order: []string{"b", "a"}}
	a := New(search, vector)

	res, err := a.HybridSearch(context.Background(), "query", []float32{0.1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "b", res[0].ID)
	require.Equal(t, "a", res[1].ID)
}

func TestHybridSearchReturnsEmptyWhenBothBackendsFail(t *testing.T) {
	search := &memSearch{fail: true}
	vector := &memVector{fail: true}
	a := New(search, vector)

	res, err := a.HybridSearch(context.Background(), "query", []float32{0.1}, 2, nil)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestVectorSearchPropagatesError(t *testing.T) {
	a := New(&memSearch{}, &memVector{fail: true})
	_, err := a.VectorSearch(context.Background(), []float32{0.1}, 5, nil)
	require.Error(t, err)
}

func TestFuseRRFTieBreaksByInsertionOrder(t *testing.T) {
	a := New(nil, nil)
	a.VectorWeight, a.BM25Weight = 0.5, 0.5
	ft := []databases.SearchResult{{ID: "x", Score: 1}}
	vec := []databases.VectorResult{{ID: "y", Score: 1}}
	out := a.fuseRRF(ft, vec)
	require.Len(t, out, 2)
	// x is seen first (from the bm25 list), so it wins any tie.
	require.Equal(t, "x", out[0].id)
}

func TestNormalizeFiltersJoinsSlices(t *testing.T) {
	out := normalizeFilters(Filters{"tag": []string{"a", "b"}, "doc_type": "invoice"})
	require.Equal(t, "a,b", out["tag"])
	require.Equal(t, "invoice", out["doc_type"])
}
