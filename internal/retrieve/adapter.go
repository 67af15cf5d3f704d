// Package retrieve implements the Retrieval Adapter (spec §4.4): a wrapper
// around a BM25-capable full-text engine and a vector store that exposes
// index_document/document_exists/get_document/vector_search/hybrid_search,
// fusing the two ranked lists with Reciprocal Rank Fusion.
//
// Grounded on the teacher's internal/rag/retrieve package (fusion.go,
// query.go, candidates.go), generalized to this spec's document schema and
// default fusion weights (vector 0.7 / bm25 0.3, k=60).
package retrieve

import (
	"context"
	"sort"
	"sync"

	"vantage/internal/docrecord"
	"vantage/internal/logging"
	"vantage/internal/persistence/databases"
)

// Result is a single ranked hit returned to callers above the adapter.
type Result struct {
	ID       string
	Score    float64
	Snippet  string
	Metadata map[string]string
	Record   *docrecord.Record
}

// Filters is a caller-supplied filter map; the adapter keeps string and
// string-slice values (see normalizeFilters) and drops all others.
type Filters map[string]any

// Adapter is the Retrieval Adapter described in spec §4.4.
type Adapter struct {
	mu    sync.RWMutex
	store map[string]*docrecord.Record // id -> record, source of truth for get_document

	search databases.FullTextSearch
	vector databases.VectorStore

	// VectorWeight/BM25Weight/RRFK configure the fusion formula; defaults
	// match spec §4.4 (0.7/0.3, k=60).
	VectorWeight float64
	BM25Weight   float64
	RRFK         int
}

// New constructs an Adapter over the given search/vector backends with
// spec-default fusion weights.
func New(search databases.FullTextSearch, vector databases.VectorStore) *Adapter {
	return &Adapter{
		store:        make(map[string]*docrecord.Record),
		search:       search,
		vector:       vector,
		VectorWeight: 0.7,
		BM25Weight:   0.3,
		RRFK:         60,
	}
}

// IndexDocument is idempotent by ID: refreshes immediately on repeat calls.
func (a *Adapter) IndexDocument(ctx context.Context, rec docrecord.Record) error {
	a.mu.Lock()
	a.store[rec.ID] = &rec
	a.mu.Unlock()

	md := recordMetadata(rec)
	if a.search != nil {
		if err := a.search.Index(ctx, rec.ID, rec.DetailedSummary+"\n"+rec.FullContent, md); err != nil {
			logging.Log.WithError(err).WithField("id", rec.ID).Warn("retrieve: search index failed")
		}
	}
	if a.vector != nil && rec.EmbeddingOK {
		if err := a.vector.Upsert(ctx, rec.ID, rec.VectorEmbedding, md); err != nil {
			logging.Log.WithError(err).WithField("id", rec.ID).Warn("retrieve: vector upsert failed")
		}
	}
	return nil
}

// DocumentExists reports whether id has already been indexed.
func (a *Adapter) DocumentExists(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.store[id]
	return ok
}

// GetDocument returns the stored record for id, or nil if absent.
func (a *Adapter) GetDocument(id string) *docrecord.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store[id]
}

// VectorSearch runs kNN over vector_embedding (inner-product/cosine
// depending on backend configuration) and returns scored results.
func (a *Adapter) VectorSearch(ctx context.Context, vector []float32, topK int, filters Filters) ([]Result, error) {
	if a.vector == nil {
		return nil, nil
	}
	vr, err := a.vector.SimilaritySearch(ctx, vector, topK, normalizeFilters(filters))
	if err != nil {
		logging.Log.WithError(err).Warn("retrieve: vector_search failed")
		return nil, err
	}
	out := make([]Result, 0, len(vr))
	for _, r := range vr {
		out = append(out, Result{ID: r.ID, Score: r.Score, Metadata: r.Metadata, Record: a.GetDocument(r.ID)})
	}
	return out, nil
}

// HybridSearch sends queryText to the configured full-text backend (which
// indexes detailed summary plus full content as one text) and runs a
// vector kNN, then fuses them with RRF. The full-text arm is a single plain
// query: it applies no per-field boosts, no fuzziness and no phrase match.
// On failure it falls back hybrid -> vector-only -> empty list,
// per §4.4's error policy: never raise into the orchestrator.
func (a *Adapter) HybridSearch(ctx context.Context, queryText string, vector []float32, topK int, filters Filters) ([]Result, error) {
	nf := normalizeFilters(filters)

	var ftRes []databases.SearchResult
	var ftErr error
	if a.search != nil {
		ftRes, ftErr = a.search.Search(ctx, queryText, topK*3, nf)
		if ftErr != nil {
			logging.Log.WithError(ftErr).Warn("retrieve: bm25 search failed, falling back to vector-only")
		}
	}

	var vecRes []databases.VectorResult
	if a.vector != nil && len(vector) > 0 {
		vr, err := a.vector.SimilaritySearch(ctx, vector, topK*3, nf)
		if err != nil {
			logging.Log.WithError(err).Warn("retrieve: vector search failed")
		} else {
			vecRes = vr
		}
	}

	if ftErr != nil || a.search == nil {
		// hybrid -> vector-only fallback
		out := make([]Result, 0, len(vecRes))
		for i, r := range vecRes {
			if i >= topK {
				break
			}
			out = append(out, Result{ID: r.ID, Score: r.Score, Metadata: r.Metadata, Record: a.GetDocument(r.ID)})
		}
		return out, nil
	}

	fused := a.fuseRRF(ftRes, vecRes)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	out := make([]Result, 0, len(fused))
	for _, f := range fused {
		out = append(out, Result{ID: f.id, Score: f.score, Snippet: f.snippet, Metadata: f.metadata, Record: a.GetDocument(f.id)})
	}
	return out, nil
}

type fusedHit struct {
	id       string
	score    float64
	snippet  string
	metadata map[string]string
	order    int // insertion order, for tie-breaking
}

// fuseRRF implements spec §4.4's Reciprocal Rank Fusion:
// score(d) = sum_lists w_i / (k + rank_i(d) + 1), documents in only one
// list get only that list's contribution, ties break by insertion order.
func (a *Adapter) fuseRRF(ft []databases.SearchResult, vec []databases.VectorResult) []fusedHit {
	k := a.RRFK
	if k <= 0 {
		k = 60
	}
	wVec, wBM25 := a.VectorWeight, a.BM25Weight
	if wVec == 0 && wBM25 == 0 {
		wVec, wBM25 = 0.7, 0.3
	}

	byID := make(map[string]*fusedHit)
	order := 0
	next := func(id string) *fusedHit {
		h, ok := byID[id]
		if !ok {
			h = &fusedHit{id: id, order: order}
			order++
			byID[id] = h
		}
		return h
	}

	for rank, r := range ft {
		h := next(r.ID)
		h.score += wBM25 / float64(k+rank+1)
		h.snippet = r.Snippet
		h.metadata = r.Metadata
	}
	for rank, r := range vec {
		h := next(r.ID)
		h.score += wVec / float64(k+rank+1)
		if h.metadata == nil {
			h.metadata = r.Metadata
		}
	}

	out := make([]fusedHit, 0, len(byID))
	for _, h := range byID {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].order < out[j].order
	})
	return out
}

// normalizeFilters converts a caller-supplied filter map to the backends'
// string filter map: a string value is kept as is, a slice of strings is
// joined with commas, and values of any other type are dropped.
func normalizeFilters(f Filters) map[string]string {
	if len(f) == 0 {
		return nil
	}
	out := make(map[string]string, len(f))
	for k, v := range f {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []string:
			out[k] = joinComma(val)
		case []any:
			strs := make([]string, 0, len(val))
			for _, x := range val {
				if s, ok := x.(string); ok {
					strs = append(strs, s)
				}
			}
			out[k] = joinComma(strs)
		}
	}
	return out
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func recordMetadata(rec docrecord.Record) map[string]string {
	return map[string]string{
		"filename":     rec.Filename,
		"file_path":    rec.FilePath,
		"file_type":    rec.FileType,
		"content_type": string(rec.ContentType),
		"document_type": string(rec.DocType),
		"keywords":     rec.Keywords,
	}
}
