package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/llm"
	"vantage/internal/llmclient"
	"vantage/internal/testhelpers"
)

func TestRuleBasedClassifyImageSearchHighestPriority(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "show me photos of the beach", nil)
	require.Equal(t, IntentDocumentSearch, r.Intent)
	require.Equal(t, 0.95, r.Confidence)
}

func TestRuleBasedClassifyComparison(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "compare the Q1 and Q2 reports", nil)
	require.Equal(t, IntentComparison, r.Intent)
}

func TestRuleBasedClassifySummarization(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "summarize all documents about onboarding", nil)
	require.Equal(t, IntentSummarization, r.Intent)
}

func TestRuleBasedClassifyDocumentSearchWithPossessive(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "find my invoice from last month", nil)
	require.Equal(t, IntentDocumentSearch, r.Intent)
	require.NotNil(t, r.Filters)
	require.Equal(t, "invoice", r.Filters["document_type"])
	require.Equal(t, "last_month", r.Filters["time_range"])
}

func TestRuleBasedClassifyGeneralKnowledgeWithoutDocKeywords(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "what is machine learning", nil)
	require.Equal(t, IntentGeneralKnowledge, r.Intent)
}

func TestRuleBasedClassifyGeneralKeywordsWithDocKeywordStillDocSearch(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "explain document retention policy", nil)
	require.Equal(t, IntentDocumentSearch, r.Intent)
	require.Equal(t, 0.7, r.Confidence)
}

func TestRuleBasedClassifySystemMeta(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "what can you do", nil)
	require.Equal(t, IntentSystemMeta, r.Intent)
}

func TestRuleBasedClassifyDefaultsToDocumentSearch(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "xyzzy plugh", nil)
	require.Equal(t, IntentDocumentSearch, r.Intent)
	require.Equal(t, 0.6, r.Confidence)
}

func TestFollowupShowMoreExpandsPreviousQuery(t *testing.T) {
	c := New(nil, "")
	sess := &Context{RecentQueries: []string{"find invoices from acme"}}
	r := c.Classify(context.Background(), "show more like that", sess)
	require.True(t, r.IsFollowup)
	require.Equal(t, "find invoices from acme (more results)", r.ResolvedQuery)
}

func TestFollowupPronounReferencesPreviousQuery(t *testing.T) {
	c := New(nil, "")
	sess := &Context{RecentQueries: []string{"find invoices from acme"}}
	r := c.Classify(context.Background(), "show that", sess)
	require.True(t, r.IsFollowup)
	require.Equal(t, "find invoices from acme", r.ResolvedQuery)
}

func TestFollowupFilterPhraseCombinesWithPreviousQuery(t *testing.T) {
	c := New(nil, "")
	sess := &Context{RecentQueries: []string{"find invoices"}}
	r := c.Classify(context.Background(), "but only from 2024", sess)
	require.True(t, r.IsFollowup)
	require.Equal(t, "find invoices from 2024", r.ResolvedQuery)
}

func TestFollowupWhatAboutPattern(t *testing.T) {
	c := New(nil, "")
	sess := &Context{RecentQueries: []string{"find resumes"}}
	r := c.Classify(context.Background(), "what about 2023", sess)
	require.True(t, r.IsFollowup)
	require.Equal(t, "find resumes 2023", r.ResolvedQuery)
}

func TestNoFollowupWithoutSessionHistory(t *testing.T) {
	c := New(nil, "")
	r := c.Classify(context.Background(), "show more", nil)
	require.False(t, r.IsFollowup)
}

func TestExtractEntitiesQuotedAndPossessiveAndDates(t *testing.T) {
	entities := ExtractEntities(`Find Aditya's "quarterly report" from March 2024`)
	require.Contains(t, entities, "Aditya")
	require.Contains(t, entities, "quarterly report")
	require.Contains(t, entities, "March 2024")
}

func TestExtractFiltersFileAndDocType(t *testing.T) {
	f := ExtractFilters("find my pdf invoice")
	require.Equal(t, []string{".pdf"}, f["file_type"])
	require.Equal(t, "invoice", f["document_type"])
}

func TestExtractTimeFiltersQuarter(t *testing.T) {
	f := ExtractTimeFilters("revenue for Q2 2024")
	require.Equal(t, "Q2", f["quarter"])
	require.Equal(t, "2024", f["year"])
}

func TestExtractTimeFiltersRelativeDays(t *testing.T) {
	f := ExtractTimeFilters("files from last 5 days")
	require.Equal(t, "last_5_days", f["relative"])
}

func TestNeedsClarificationLowConfidence(t *testing.T) {
	require.True(t, NeedsClarification(Result{Intent: IntentDocumentSearch, Confidence: 0.2}))
	require.False(t, NeedsClarification(Result{Intent: IntentDocumentSearch, Confidence: 0.9}))
}

func TestGetAgentForIntent(t *testing.T) {
	require.Equal(t, "Search Agent", GetAgentForIntent(IntentDocumentSearch).Name)
	require.Equal(t, "Aristotle", GetAgentForIntent(IntentComparison).Name)
}

func TestLLMClassifyClampsConfidenceAboveOne(t *testing.T) {
	provider := &testhelpers.FakeProvider{Resp: llm.Message{
		Role:    "assistant",
		Content: `{"intent": "document_search", "confidence": 1.2}`,
	}}
	c := New(llmclient.New(provider, nil), "")
	r, err := c.llmClassify(context.Background(), "find reports")
	require.NoError(t, err)
	require.Equal(t, 1.0, r.Confidence)
}

func TestLLMClassifyClampsConfidenceBelowZero(t *testing.T) {
	provider := &testhelpers.FakeProvider{Resp: llm.Message{
		Role:    "assistant",
		Content: `{"intent": "document_search", "confidence": -0.1}`,
	}}
	c := New(llmclient.New(provider, nil), "")
	r, err := c.llmClassify(context.Background(), "find reports")
	require.NoError(t, err)
	require.Equal(t, 0.0, r.Confidence)
}
