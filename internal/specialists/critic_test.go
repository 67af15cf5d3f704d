package specialists

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vantage/internal/docrecord"
)

func TestCriticEvaluateResultsEmptyIsScoredZero(t *testing.T) {
	c := &Critic{LLM: newTestClient("", nil), Model: "m"}
	eval := c.EvaluateResults(context.Background(), "query", nil)
	require.Equal(t, 0.0, eval.QualityScore)
	require.True(t, eval.ShouldReformulate)
}

func TestCriticEvaluateResultsParsesJSON(t *testing.T) {
	c := &Critic{LLM: newTestClient(`{"quality_score": 0.9, "relevance_score": 0.8, "completeness_score": 0.7, "strengths": ["good"], "weaknesses": [], "recommendations": [], "should_reformulate": false}`, nil), Model: "m"}
	docs := []docrecord.Record{newDoc("a.pdf", "summary", time.Time{})}
	eval := c.EvaluateResults(context.Background(), "query", docs)
	require.Equal(t, 0.9, eval.QualityScore)
	require.False(t, eval.ShouldReformulate)
}

func TestCriticDetectHallucinationNoSourcesDegrades(t *testing.T) {
	c := &Critic{LLM: newTestClient("", nil), Model: "m"}
	out := c.DetectHallucination(context.Background(), "q", "response text", nil)
	require.False(t, out.HasHallucination)
	require.Equal(t, 0.5, out.Confidence)
}

func TestCriticDetectHallucinationParsesJSON(t *testing.T) {
	c := &Critic{LLM: newTestClient(`{"has_hallucination": true, "confidence": 0.9, "unsupported_claims": ["X"], "supported_claims": []}`, nil), Model: "m"}
	docs := []docrecord.Record{newDoc("a.pdf", "summary", time.Time{})}
	out := c.DetectHallucination(context.Background(), "q", "response text", docs)
	require.True(t, out.HasHallucination)
	require.Equal(t, []string{"X"}, out.UnsupportedClaims)
}

func TestCalculateConfidenceScoreNoResults(t *testing.T) {
	require.Equal(t, 0.0, CalculateConfidenceScore(nil, 0.9, Evaluation{QualityScore: 0.8}))
}

func TestCalculateConfidenceScoreBlendsFactors(t *testing.T) {
	docs := make([]docrecord.Record, 5)
	score := CalculateConfidenceScore(docs, 0.9, Evaluation{QualityScore: 0.8})
	// countFactor=1.0*0.2=0.2, quality 0.8*0.4=0.32, topScore 0.9*0.4=0.36 -> 0.88
	require.InDelta(t, 0.88, score, 1e-9)
}

func TestCalculateConfidenceScoreCapsFactorsAboveOne(t *testing.T) {
	docs := make([]docrecord.Record, 10)
	score := CalculateConfidenceScore(docs, 1.5, Evaluation{QualityScore: 0.8})
	require.InDelta(t, 0.92, score, 1e-9)
}

func TestSuggestImprovementsZeroResults(t *testing.T) {
	out := SuggestImprovements("query", nil, Evaluation{ShouldReformulate: true})
	require.Contains(t, out, "Consider rephrasing your query for better results")
	require.Contains(t, out, "Try using different keywords")
	require.LessOrEqual(t, len(out), 5)
}

func TestSuggestImprovementsFewResults(t *testing.T) {
	docs := make([]docrecord.Record, 2)
	out := SuggestImprovements("query", docs, Evaluation{RelevanceScore: 0.9})
	require.Contains(t, out, "Try broadening your search terms for more results")
}

func TestSuggestImprovementsAppendsEvaluationRecommendationsCappedAtFive(t *testing.T) {
	eval := Evaluation{
		ShouldReformulate: true,
		RelevanceScore:    0.1,
		Recommendations:   []string{"r1", "r2", "r3", "r4"},
	}
	out := SuggestImprovements("query", nil, eval)
	require.Len(t, out, 5)
}
