package specialists

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vantage/internal/docrecord"
)

func TestAnalystCompareDocumentsRequiresTwoDocuments(t *testing.T) {
	a := &Analyst{LLM: newTestClient("", nil), Model: "m"}
	out := a.CompareDocuments(context.Background(), []docrecord.Record{}, "")
	require.NotEmpty(t, out.Error)
}

func TestAnalystCompareDocumentsParsesJSON(t *testing.T) {
	a := &Analyst{LLM: newTestClient(`{"similarities": ["both invoices"], "differences": ["different vendors"], "unique_aspects": [], "summary": "s"}`, nil), Model: "m"}
	docs := []docrecord.Record{
		newDoc("a.pdf", "invoice from acme", time.Time{}),
		newDoc("b.pdf", "invoice from globex", time.Time{}),
	}
	out := a.CompareDocuments(context.Background(), docs, "vendor")
	require.Equal(t, []string{"both invoices"}, out.Similarities)
	require.Equal(t, "s", out.Summary)
}

func TestAnalystDetectTrendsRequiresDatedDocuments(t *testing.T) {
	a := &Analyst{LLM: newTestClient("", nil), Model: "m"}
	docs := []docrecord.Record{newDoc("a.pdf", "summary", time.Time{})}
	out := a.DetectTrends(context.Background(), docs)
	require.NotEmpty(t, out.Error)
}

func TestAnalystDetectTrendsOrdersByDate(t *testing.T) {
	a := &Analyst{LLM: newTestClient(`{"trends": ["up"], "patterns": [], "insights": []}`, nil), Model: "m"}
	now := time.Now()
	docs := []docrecord.Record{
		newDoc("b.pdf", "later", now),
		newDoc("a.pdf", "earlier", now.Add(-48*time.Hour)),
	}
	out := a.DetectTrends(context.Background(), docs)
	require.Equal(t, []string{"up"}, out.Trends)
}

func TestAnalystGenerateInsightsParsesJSON(t *testing.T) {
	a := &Analyst{LLM: newTestClient(`{"insights": ["insight one"]}`, nil), Model: "m"}
	docs := []docrecord.Record{newDoc("a.pdf", "summary", time.Time{})}
	out := a.GenerateInsights(context.Background(), docs, "query")
	require.Equal(t, []string{"insight one"}, out)
}
