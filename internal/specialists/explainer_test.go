package specialists

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExplainerExplainRankingFallsBackOnError(t *testing.T) {
	e := &Explainer{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	doc := newDoc("a.pdf", "summary", time.Time{})
	out := e.ExplainRanking(context.Background(), "query", doc, 1, 0.82)
	require.Contains(t, out, "0.82")
}

func TestExplainerExplainRankingReturnsLLMText(t *testing.T) {
	e := &Explainer{LLM: newTestClient("it matches because of X", nil), Model: "m"}
	doc := newDoc("a.pdf", "summary", time.Time{})
	out := e.ExplainRanking(context.Background(), "query", doc, 1, 0.82)
	require.Equal(t, "it matches because of X", out)
}

func TestExplainerHighlightMatchesParsesJSON(t *testing.T) {
	e := &Explainer{LLM: newTestClient(`{"excerpts": ["match one", "match two"]}`, nil), Model: "m"}
	doc := newDoc("a.pdf", "summary", time.Time{})
	out := e.HighlightMatches(context.Background(), "query", doc)
	require.Equal(t, []string{"match one", "match two"}, out)
}

func TestExplainerHighlightMatchesReturnsEmptySliceOnError(t *testing.T) {
	e := &Explainer{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	doc := newDoc("a.pdf", "summary", time.Time{})
	out := e.HighlightMatches(context.Background(), "query", doc)
	require.Empty(t, out)
	require.NotNil(t, out)
}

func TestExplainScoreComponentsBuckets(t *testing.T) {
	strong := ExplainScoreComponents(0.9)
	require.Equal(t, "strong match", strong.Qualitative)
	require.InDelta(t, 0.63, strong.SemanticSimilarity, 1e-9)

	moderate := ExplainScoreComponents(0.5)
	require.Equal(t, "moderate match", moderate.Qualitative)

	weak := ExplainScoreComponents(0.2)
	require.Equal(t, "weak match", weak.Qualitative)
}
