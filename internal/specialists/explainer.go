package specialists

import (
	"context"
	"encoding/json"
	"fmt"

	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Explainer is Hermes, the result-explanation specialist (spec §4.8).
// Grounded on original_source/backend/agents/explanation_agent.py.
type Explainer struct {
	LLM   *llmclient.Client
	Model string
}

// ExplainRanking produces a 2-3 sentence explanation of why a document
// ranked where it did; falls back to a generic score-based sentence on
// any LLM failure.
func (e *Explainer) ExplainRanking(ctx context.Context, query string, doc docrecord.Record, rank int, score float64) string {
	excerpt := truncate(doc.DetailedSummary, 300)
	prompt := fmt.Sprintf(
		"Query: %q\nDocument (%s), ranked #%d:\n%s\n\n"+
			"In 2-3 sentences, explain why this document is relevant to the query.",
		query, doc.Filename, rank, excerpt)

	res, err := e.LLM.Call(ctx, llmclient.CallOptions{Model: e.Model, Prompt: prompt, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("explainer: explain_ranking failed")
		return fmt.Sprintf("This document has a relevance score of %.2f based on how closely its content matches your query.", score)
	}
	return res.Text
}

// HighlightMatches finds 2-3 excerpts of doc that best match query;
// returns an empty slice (never nil-with-error) on failure.
func (e *Explainer) HighlightMatches(ctx context.Context, query string, doc docrecord.Record) []string {
	content := truncate(doc.DetailedSummary, 1000)
	prompt := fmt.Sprintf(
		"Query: %q\nDocument content:\n%s\n\n"+
			`Extract 2-3 short excerpts that best match the query. Return JSON: {"excerpts": []}`,
		query, content)

	res, err := e.LLM.Call(ctx, llmclient.CallOptions{Model: e.Model, Prompt: prompt, JSON: true, Temperature: 0.2})
	if err != nil {
		logging.Log.WithError(err).Warn("explainer: highlight_matches failed")
		return []string{}
	}
	var out struct {
		Excerpts []string `json:"excerpts"`
	}
	if err := json.Unmarshal([]byte(res.Text), &out); err != nil {
		return []string{}
	}
	return out.Excerpts
}

// ScoreComponents is explain_score_components' result shape.
type ScoreComponents struct {
	SemanticSimilarity float64 `json:"semantic_similarity"`
	KeywordMatch       float64 `json:"keyword_match"`
	Qualitative        string  `json:"qualitative"`
}

// ExplainScoreComponents is a pure arithmetic breakdown of a fused
// relevance score; it performs no LLM call.
func ExplainScoreComponents(score float64) ScoreComponents {
	qualitative := "weak match"
	switch {
	case score > 0.7:
		qualitative = "strong match"
	case score > 0.4:
		qualitative = "moderate match"
	}
	return ScoreComponents{
		SemanticSimilarity: score * 0.7,
		KeywordMatch:       score * 0.3,
		Qualitative:        qualitative,
	}
}
