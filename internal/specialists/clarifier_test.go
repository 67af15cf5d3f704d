package specialists

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClarifierDetectAmbiguityParsesJSON(t *testing.T) {
	c := &Clarifier{LLM: newTestClient(`{"is_ambiguous": true, "ambiguity_score": 0.8, "issues": ["vague scope"], "possible_interpretations": ["A", "B"]}`, nil), Model: "m"}
	info := c.DetectAmbiguity(context.Background(), "find stuff")
	require.True(t, info.IsAmbiguous)
	require.Equal(t, 0.8, info.AmbiguityScore)
	require.Equal(t, []string{"A", "B"}, info.PossibleInterpretations)
}

func TestClarifierDetectAmbiguityDegradesOnError(t *testing.T) {
	c := &Clarifier{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	info := c.DetectAmbiguity(context.Background(), "find stuff")
	require.False(t, info.IsAmbiguous)
}

func TestClarifierGenerateClarifyingQuestionsFallsBackOnError(t *testing.T) {
	c := &Clarifier{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	qs := c.GenerateClarifyingQuestions(context.Background(), "find stuff", AmbiguityInfo{}, 2)
	require.Equal(t, defaultClarifyingQuestions[:2], qs)
}

func TestClarifierRefineQueryConcatenatesOnError(t *testing.T) {
	c := &Clarifier{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	out := c.RefineQuery(context.Background(), "find invoices", "from acme")
	require.Equal(t, "find invoices from acme", out)
}

func TestClarifierRefineQueryTrimsQuotes(t *testing.T) {
	c := &Clarifier{LLM: newTestClient(`"invoices from acme"`, nil), Model: "m"}
	out := c.RefineQuery(context.Background(), "find invoices", "from acme")
	require.Equal(t, "invoices from acme", out)
}

func TestClarifierSuggestAlternativesParsesJSON(t *testing.T) {
	c := &Clarifier{LLM: newTestClient(`{"alternatives": ["find receipts", "search invoices"]}`, nil), Model: "m"}
	alts := c.SuggestAlternatives(context.Background(), "find invoices", 2)
	require.Equal(t, []string{"find receipts", "search invoices"}, alts)
}
