package sisyphus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/retrieve"
)

func resultsWithScore(scores ...float64) []retrieve.Result {
	out := make([]retrieve.Result, len(scores))
	for i, s := range scores {
		out[i] = retrieve.Result{ID: "doc", Score: s, Snippet: "find invoices acme"}
	}
	return out
}

func TestRetrieveWithCorrectionStopsWhenThresholdMetFirstTry(t *testing.T) {
	calls := 0
	search := func(ctx context.Context, query string, filters retrieve.Filters, userID string) ([]retrieve.Result, error) {
		calls++
		return resultsWithScore(0.9, 0.85, 0.8, 0.7, 0.6), nil
	}
	c := New(search, nil, nil, "")
	out := c.RetrieveWithCorrection(context.Background(), "find invoices from acme", nil, "", nil)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, out.TotalIterations)
	require.False(t, out.WasReformulated)
	require.GreaterOrEqual(t, out.FinalQuality, c.QualityThreshold)
}

func TestRetrieveWithCorrectionReformulatesOnLowQuality(t *testing.T) {
	calls := 0
	search := func(ctx context.Context, query string, filters retrieve.Filters, userID string) ([]retrieve.Result, error) {
		calls++
		return nil, nil
	}
	c := New(search, nil, nil, "")
	out := c.RetrieveWithCorrection(context.Background(), "find invoices", nil, "", nil)
	require.Equal(t, c.MaxIterations, calls)
	require.Equal(t, c.MaxIterations, out.TotalIterations)
	require.Equal(t, 0.0, out.FinalQuality)
}

func TestRetrieveWithCorrectionSearchErrorTreatedAsEmpty(t *testing.T) {
	search := func(ctx context.Context, query string, filters retrieve.Filters, userID string) ([]retrieve.Result, error) {
		return nil, errors.New("boom")
	}
	c := New(search, nil, nil, "")
	c.MaxIterations = 1
	out := c.RetrieveWithCorrection(context.Background(), "find invoices", nil, "", nil)
	require.Empty(t, out.FinalResults)
	require.Equal(t, 0.0, out.FinalQuality)
}

func TestHeuristicQualityNoResultsIsBaseScoreWithIssues(t *testing.T) {
	q, issues := heuristicQuality("find invoices", nil)
	require.InDelta(t, 0.3, q, 1e-9)
	require.Contains(t, issues, "Too few results")
}

func TestHeuristicQualityRewardsResultCountAndTermOverlap(t *testing.T) {
	results := resultsWithScore(0.9, 0.8, 0.8, 0.9, 0.85)
	q, issues := heuristicQuality("find invoices acme", results)
	require.Greater(t, q, 0.8)
	require.Empty(t, issues)
}

func TestSimpleReformulationBroadensOnTooFewResults(t *testing.T) {
	out := simpleReformulation("find invoices from acme corp", []string{"Too few results"})
	require.Equal(t, "find invoices from", out)
}

func TestSimpleReformulationSwapsSynonym(t *testing.T) {
	out := simpleReformulation("find invoices", nil)
	require.Equal(t, "search invoices", out)
}

func TestShouldUseCorrectionNoResults(t *testing.T) {
	require.True(t, ShouldUseCorrection("find invoices", nil))
}

func TestShouldUseCorrectionComplexQuery(t *testing.T) {
	results := resultsWithScore(0.9, 0.9, 0.9, 0.9)
	require.True(t, ShouldUseCorrection("what are all the invoices from last year that mention acme corp?", results))
}

func TestShouldUseCorrectionFalseForStrongSimpleQuery(t *testing.T) {
	results := resultsWithScore(0.9, 0.9, 0.9, 0.9)
	require.False(t, ShouldUseCorrection("find acme invoices", results))
}
