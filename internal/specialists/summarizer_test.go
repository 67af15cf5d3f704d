package specialists

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vantage/internal/docrecord"
)

func TestSummarizerSummarizeDocumentsEmptyInput(t *testing.T) {
	s := &Summarizer{LLM: newTestClient("", nil), Model: "m"}
	out := s.SummarizeDocuments(context.Background(), nil, SummaryComprehensive)
	require.Equal(t, 1, out.Tiers)
	require.Contains(t, out.Text, "No documents")
}

func TestSummarizerSummarizeDocumentsFallsBackToFilenameListingOnError(t *testing.T) {
	s := &Summarizer{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	docs := []docrecord.Record{newDoc("report.pdf", "quarterly numbers", time.Time{})}
	out := s.SummarizeDocuments(context.Background(), docs, SummaryBrief)
	require.Contains(t, out.Text, "report.pdf")
}

func TestSummarizerSummarizeDocumentsReturnsLLMText(t *testing.T) {
	s := &Summarizer{LLM: newTestClient("a tidy summary", nil), Model: "m"}
	docs := []docrecord.Record{newDoc("report.pdf", "quarterly numbers", time.Time{})}
	out := s.SummarizeDocuments(context.Background(), docs, SummaryBulletPoints)
	require.Equal(t, "a tidy summary", out.Text)
}

func TestSummarizerHierarchicalSummaryFlatForSmallSet(t *testing.T) {
	s := &Summarizer{LLM: newTestClient("flat summary", nil), Model: "m"}
	docs := make([]docrecord.Record, 3)
	for i := range docs {
		docs[i] = newDoc("d.pdf", "content", time.Time{})
	}
	out := s.HierarchicalSummary(context.Background(), docs)
	require.Equal(t, 1, out.Tiers)
}

func TestSummarizerHierarchicalSummaryTwoTiersForLargeSet(t *testing.T) {
	s := &Summarizer{LLM: newTestClient("tier summary", nil), Model: "m"}
	docs := make([]docrecord.Record, 8)
	for i := range docs {
		docs[i] = newDoc("d.pdf", "content", time.Time{})
	}
	out := s.HierarchicalSummary(context.Background(), docs)
	require.Equal(t, 2, out.Tiers)
	require.Equal(t, "tier summary", out.Text)
}
