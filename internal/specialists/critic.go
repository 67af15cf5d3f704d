package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Critic is Diogenes, the result-quality specialist (spec §4.8).
// Grounded on original_source/backend/agents/critic_agent.py.
type Critic struct {
	LLM   *llmclient.Client
	Model string
}

// Evaluation is evaluate_results' result shape.
type Evaluation struct {
	QualityScore      float64  `json:"quality_score"`
	RelevanceScore    float64  `json:"relevance_score"`
	CompletenessScore float64  `json:"completeness_score"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	Recommendations   []string `json:"recommendations"`
	ShouldReformulate bool     `json:"should_reformulate"`
}

// EvaluateResults judges the quality of a result set for query. An empty
// result set is scored zero with a reformulation recommendation rather
// than calling the LLM; a call failure degrades to an "assume decent
// quality" fallback so downstream routing never blocks on a critic error.
func (c *Critic) EvaluateResults(ctx context.Context, query string, results []docrecord.Record) Evaluation {
	if len(results) == 0 {
		return Evaluation{
			QualityScore:      0,
			ShouldReformulate: true,
			Recommendations:   []string{"No results found; try broadening or rephrasing the query"},
		}
	}

	subset := results
	if len(subset) > 5 {
		subset = subset[:5]
	}
	var b strings.Builder
	for i, d := range subset {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, d.Filename, truncate(d.DetailedSummary, 200))
	}
	prompt := fmt.Sprintf(
		"Query: %q\nTop results:\n%s\n"+
			"Evaluate these results' quality, relevance, and completeness. "+
			`Return JSON: {"quality_score": 0.0-1.0, "relevance_score": 0.0-1.0, "completeness_score": 0.0-1.0, `+
			`"strengths": [], "weaknesses": [], "recommendations": [], "should_reformulate": bool}`,
		query, b.String())

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, JSON: true, Temperature: 0.2})
	if err != nil {
		logging.Log.WithError(err).Warn("critic: evaluate_results failed, assuming decent quality")
		return Evaluation{QualityScore: 0.7, RelevanceScore: 0.7, CompletenessScore: 0.6}
	}
	var out Evaluation
	if err := json.Unmarshal([]byte(res.Text), &out); err != nil {
		return Evaluation{QualityScore: 0.7, RelevanceScore: 0.7, CompletenessScore: 0.6}
	}
	return out
}

// HallucinationReport is detect_hallucination's result shape.
type HallucinationReport struct {
	HasHallucination bool     `json:"has_hallucination"`
	Confidence       float64  `json:"confidence"`
	UnsupportedClaims []string `json:"unsupported_claims"`
	SupportedClaims   []string `json:"supported_claims"`
}

// DetectHallucination checks responseText against up to 3 source
// documents; an empty source set or LLM failure degrades to "no
// hallucination, confidence 0.5" rather than blocking the response.
func (c *Critic) DetectHallucination(ctx context.Context, query, responseText string, sources []docrecord.Record) HallucinationReport {
	if len(sources) == 0 {
		return HallucinationReport{HasHallucination: false, Confidence: 0.5}
	}
	subset := sources
	if len(subset) > 3 {
		subset = subset[:3]
	}
	var b strings.Builder
	for i, d := range subset {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, d.Filename, truncate(d.DetailedSummary, 200))
	}
	prompt := fmt.Sprintf(
		"Query: %q\nGenerated response:\n%s\n\nSource documents:\n%s\n"+
			"Check whether every claim in the response is supported by the sources. "+
			`Return JSON: {"has_hallucination": bool, "confidence": 0.0-1.0, "unsupported_claims": [], "supported_claims": []}`,
		query, responseText, b.String())

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, JSON: true, Temperature: 0.1})
	if err != nil {
		logging.Log.WithError(err).Warn("critic: detect_hallucination failed")
		return HallucinationReport{HasHallucination: false, Confidence: 0.5}
	}
	var out HallucinationReport
	if err := json.Unmarshal([]byte(res.Text), &out); err != nil {
		return HallucinationReport{HasHallucination: false, Confidence: 0.5}
	}
	return out
}

// CalculateConfidenceScore is a pure function combining result count,
// evaluation quality, and the top result's score into a single confidence
// figure, rounded to 2 decimals. It performs no LLM call.
func CalculateConfidenceScore(results []docrecord.Record, topResultScore float64, eval Evaluation) float64 {
	if len(results) == 0 {
		return 0.0
	}
	countFactor := float64(len(results)) / 5.0
	if countFactor > 1.0 {
		countFactor = 1.0
	}
	scoreFactor := topResultScore
	if scoreFactor > 1.0 {
		scoreFactor = 1.0
	}
	confidence := countFactor*0.2 + eval.QualityScore*0.4 + scoreFactor*0.4
	return roundTo2(confidence)
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// SuggestImprovements builds a rule-based list of up to 5 suggestions from
// the evaluation and result count, prepending targeted advice before
// folding in the evaluation's own recommendations. It performs no LLM
// call.
func SuggestImprovements(query string, results []docrecord.Record, eval Evaluation) []string {
	var suggestions []string

	if eval.ShouldReformulate {
		suggestions = append(suggestions, "Consider rephrasing your query for better results")
	}
	if eval.RelevanceScore < 0.5 {
		suggestions = append(suggestions, "Try being more specific about what you're looking for")
	}
	switch {
	case len(results) == 0:
		suggestions = append(suggestions,
			"Try using different keywords",
			"Remove any filters that might be too restrictive",
			"Check for spelling errors in your query",
		)
	case len(results) < 3:
		suggestions = append(suggestions, "Try broadening your search terms for more results")
	}

	suggestions = append(suggestions, eval.Recommendations...)

	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}
