package specialists

import (
	"context"
	"encoding/json"

	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Clarifier is Socrates, the ambiguity-resolution specialist (spec §4.8).
// Grounded on original_source/backend/agents/clarification_agent.py.
type Clarifier struct {
	LLM   *llmclient.Client
	Model string
}

// AmbiguityInfo is detect_ambiguity's result shape.
type AmbiguityInfo struct {
	IsAmbiguous           bool     `json:"is_ambiguous"`
	AmbiguityScore        float64  `json:"ambiguity_score"`
	Issues                []string `json:"issues"`
	PossibleInterpretations []string `json:"possible_interpretations"`
}

// DetectAmbiguity asks the model whether a query is ambiguous, degrading
// to "not ambiguous" on any LLM failure so the caller never blocks.
func (c *Clarifier) DetectAmbiguity(ctx context.Context, query string) AmbiguityInfo {
	prompt := "Analyze if this query is ambiguous: \"" + query + "\"\n\n" +
		"Ambiguity criteria: unclear intent, poorly defined scope, multiple interpretations, missing context.\n" +
		`Return JSON: {"is_ambiguous": bool, "ambiguity_score": 0.0-1.0, "issues": [], "possible_interpretations": []}`

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, JSON: true, Temperature: 0.2})
	if err != nil {
		logging.Log.WithError(err).Warn("clarifier: ambiguity detection failed")
		return AmbiguityInfo{}
	}
	var info AmbiguityInfo
	if err := json.Unmarshal([]byte(res.Text), &info); err != nil {
		logging.Log.WithError(err).Warn("clarifier: ambiguity response not valid JSON")
		return AmbiguityInfo{}
	}
	return info
}

var defaultClarifyingQuestions = []string{
	"Could you be more specific about what you're looking for?",
	"What type of documents are you interested in?",
	"Do you have a time frame in mind?",
}

// GenerateClarifyingQuestions produces up to maxQuestions follow-up
// questions, falling back to a fixed set on any failure.
func (c *Clarifier) GenerateClarifyingQuestions(ctx context.Context, query string, info AmbiguityInfo, maxQuestions int) []string {
	if maxQuestions <= 0 {
		maxQuestions = 3
	}
	prompt := "Generate clarifying questions for: \"" + query + "\"\n" +
		`Return JSON: {"questions": ["Question 1?", "Question 2?"]}`

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, JSON: true, Temperature: 0.4})
	if err != nil {
		return capStrings(defaultClarifyingQuestions, maxQuestions)
	}
	var parsed struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil || len(parsed.Questions) == 0 {
		return capStrings(defaultClarifyingQuestions, maxQuestions)
	}
	return capStrings(parsed.Questions, maxQuestions)
}

// RefineQuery incorporates a user's clarification answer into a more
// specific query; on failure it concatenates original+answer.
func (c *Clarifier) RefineQuery(ctx context.Context, originalQuery, answer string) string {
	prompt := "Refine this query based on the user's clarification:\n" +
		"Original query: \"" + originalQuery + "\"\nUser clarification: \"" + answer + "\"\n" +
		"Respond with just the refined query, no JSON."

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, Temperature: 0.3})
	if err != nil || res.Text == "" {
		return originalQuery + " " + answer
	}
	return trimQuotes(res.Text)
}

// SuggestAlternatives proposes alternate phrasings of query.
func (c *Clarifier) SuggestAlternatives(ctx context.Context, query string, numAlternatives int) []string {
	if numAlternatives <= 0 {
		numAlternatives = 3
	}
	prompt := "Generate alternative phrasings for this search query: \"" + query + "\"\n" +
		`Return JSON: {"alternatives": ["Alternative 1", "Alternative 2"]}`

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, JSON: true, Temperature: 0.5})
	if err != nil {
		return nil
	}
	var parsed struct {
		Alternatives []string `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil {
		return nil
	}
	return parsed.Alternatives
}

func capStrings(ss []string, n int) []string {
	if n >= len(ss) {
		return ss
	}
	return ss[:n]
}

func trimQuotes(s string) string {
	for len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}
