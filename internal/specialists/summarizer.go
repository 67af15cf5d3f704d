package specialists

import (
	"context"
	"fmt"
	"strings"

	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Summarizer is Thoth, the multi-document summarization specialist (spec
// §4.8). Grounded on
// original_source/backend/agents/summarization_agent.py.
type Summarizer struct {
	LLM   *llmclient.Client
	Model string
}

// SummaryType selects the instruction template used by SummarizeDocuments.
type SummaryType string

const (
	SummaryComprehensive SummaryType = "comprehensive"
	SummaryBrief         SummaryType = "brief"
	SummaryBulletPoints  SummaryType = "bullet_points"
)

var summaryInstructions = map[SummaryType]string{
	SummaryComprehensive: "Provide a comprehensive summary covering all major points, organized by theme.",
	SummaryBrief:         "Provide a brief 2-3 sentence summary capturing the key takeaway.",
	SummaryBulletPoints:  "Provide a bullet-point summary with one bullet per key point.",
}

// Summary carries the produced text plus the tier count used to build it
// (1 for a flat summary, 2 for a hierarchical combination).
type Summary struct {
	Text  string
	Tiers int
}

// SummarizeDocuments summarizes up to 10 documents (each truncated to 400
// chars) per summaryType; on LLM failure it falls back to a plain filename
// listing so callers always get something.
func (s *Summarizer) SummarizeDocuments(ctx context.Context, docs []docrecord.Record, summaryType SummaryType) Summary {
	if len(docs) == 0 {
		return Summary{Text: "No documents to summarize.", Tiers: 1}
	}
	subset := docs
	if len(subset) > 10 {
		subset = subset[:10]
	}
	instruction, ok := summaryInstructions[summaryType]
	if !ok {
		instruction = summaryInstructions[SummaryComprehensive]
	}

	var b strings.Builder
	for i, d := range subset {
		fmt.Fprintf(&b, "Document %d (%s):\n%s\n\n", i+1, d.Filename, truncate(d.DetailedSummary, 400))
	}
	prompt := instruction + "\n\n" + b.String()

	res, err := s.LLM.Call(ctx, llmclient.CallOptions{Model: s.Model, Prompt: prompt, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("summarizer: summarize_documents failed, using filename fallback")
		return Summary{Text: fallbackListing(subset), Tiers: 1}
	}
	return Summary{Text: res.Text, Tiers: 1}
}

func fallbackListing(docs []docrecord.Record) string {
	var b strings.Builder
	b.WriteString("Summary unavailable. Documents included:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s\n", d.Filename)
	}
	return b.String()
}

// HierarchicalSummary collapses large document sets in two tiers: up to 5
// documents get a flat summary; more than 5 split into a first tier of 5
// and a second tier of the next 5, each summarized, then combined by a
// second LLM call into one unified summary.
func (s *Summarizer) HierarchicalSummary(ctx context.Context, docs []docrecord.Record) Summary {
	if len(docs) <= 5 {
		return s.SummarizeDocuments(ctx, docs, SummaryComprehensive)
	}

	tier1 := docs[:5]
	end := len(docs)
	if end > 10 {
		end = 10
	}
	tier2 := docs[5:end]

	sum1 := s.SummarizeDocuments(ctx, tier1, SummaryComprehensive)
	sum2 := s.SummarizeDocuments(ctx, tier2, SummaryComprehensive)

	prompt := "Combine these two partial summaries into one unified summary:\n\n" +
		"Part 1:\n" + sum1.Text + "\n\nPart 2:\n" + sum2.Text

	res, err := s.LLM.Call(ctx, llmclient.CallOptions{Model: s.Model, Prompt: prompt, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("summarizer: hierarchical combination failed, concatenating tiers")
		return Summary{Text: sum1.Text + "\n\n" + sum2.Text, Tiers: 2}
	}
	return Summary{Text: res.Text, Tiers: 2}
}
