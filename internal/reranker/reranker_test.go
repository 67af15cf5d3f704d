package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/docrecord"
	"vantage/internal/retrieve"
)

type fixedEncoder map[string]float64

func (f fixedEncoder) Score(ctx context.Context, query, document string) (float64, error) {
	return f[document], nil
}

type fixedFeedback map[string]float64

func (f fixedFeedback) Boost(userID, query, docID string) float64 {
	return f[docID]
}

func item(id, summary, keywords string, score float64) retrieve.Result {
	return retrieve.Result{
		ID:    id,
		Score: score,
		Record: &docrecord.Record{
			ID:              id,
			DetailedSummary: summary,
			Keywords:        keywords,
		},
	}
}

func encDoc(summary, keywords string) string {
	return summary + "\nKeywords: " + keywords
}

func TestRerankOrdersByBoostedScore(t *testing.T) {
	enc := fixedEncoder{encDoc("low", "x,y"): -5, encDoc("high", "x,y"): 5}
	r := New(enc, nil)
	items := []retrieve.Result{item("a", "low", "x,y", 0.1), item("b", "high", "x,y", 0.1)}
	out, err := r.Rerank(context.Background(), "u1", "q", items, 2, 0)
	require.NoError(t, err)
	require.Equal(t, "b", out[0].ID)
	require.Equal(t, "a", out[1].ID)
}

func TestRerankAppliesFeedbackBoostWithinCap(t *testing.T) {
	enc := fixedEncoder{encDoc("x", "k"): 0} // normalize(0) = 0.5 for both
	fb := fixedFeedback{"a": 1.0, "b": -1.0}
	r := New(enc, fb)
	items := []retrieve.Result{item("a", "x", "k", 0.5), item("b", "x", "k", 0.5)}
	out, err := r.Rerank(context.Background(), "u1", "q", items, 2, 0)
	require.NoError(t, err)
	require.Equal(t, "a", out[0].ID)
	require.InDelta(t, 0.7, out[0].Boosted, 1e-9)
	require.InDelta(t, 0.3, out[1].Boosted, 1e-9)
}

func TestRerankFallsBackToFusedScoreOnEncoderError(t *testing.T) {
	r := New(failingEncoder{}, nil)
	items := []retrieve.Result{item("a", "x", "", 0.9)}
	out, err := r.Rerank(context.Background(), "", "q", items, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 0.9, out[0].RawScore)
}

type failingEncoder struct{}

func (failingEncoder) Score(ctx context.Context, query, document string) (float64, error) {
	return 0, assertErr
}

var assertErr = errDummy{}

type errDummy struct{}

func (errDummy) Error() string { return "cross-encoder unavailable" }

func TestMMRDiversifiesAwayFromDuplicateKeywords(t *testing.T) {
	enc := fixedEncoder{
		encDoc("a", "go,concurrency,channels"): 3,
		encDoc("b", "go,concurrency,channels"): 2.9,
		encDoc("c", "python,django,orm"):       0,
	}
	r := New(enc, nil)
	items := []retrieve.Result{
		item("a", "a", "go,concurrency,channels", 0),
		item("b", "b", "go,concurrency,channels", 0), // near-duplicate of a
		item("c", "c", "python,django,orm", 0),       // distinct topic, lower relevance
	}
	out, err := r.Rerank(context.Background(), "", "q", items, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].ID)
	// c should edge out b for the second slot due to diversity penalty on b.
	require.Equal(t, "c", out[1].ID)
}

func TestExplainBuckets(t *testing.T) {
	require.Equal(t, "highly relevant", Explain(0.9))
	require.Equal(t, "moderately relevant", Explain(0.65))
	require.Equal(t, "somewhat relevant", Explain(0.45))
	require.Equal(t, "marginally relevant", Explain(0.1))
}

func TestJaccardSymmetricAndBounded(t *testing.T) {
	a := map[string]struct{}{"x": {}, "y": {}}
	b := map[string]struct{}{"y": {}, "z": {}}
	require.InDelta(t, 1.0/3.0, jaccard(a, b), 1e-9)
	require.Equal(t, jaccard(a, b), jaccard(b, a))
	require.Equal(t, 0.0, jaccard(map[string]struct{}{}, b))
}
