package ingestioncore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/llm"
	"vantage/internal/llmclient"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	if f.err != nil {
		return llm.Message{}, f.err
	}
	return llm.Message{Role: "assistant", Content: f.response}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("not implemented")
}

func newTestClient(response string, err error) *llmclient.Client {
	return llmclient.New(&fakeProvider{response: response, err: err}, nil)
}

func TestParseDetailedResponseFullTemplate(t *testing.T) {
	resp := `SUMMARY:
This document describes a services agreement between two companies.

KEYWORDS: services, agreement, renewal

ENTITIES_STRUCTURED:
PERSON: [Jane Doe, John Smith]
SKILLS: [negotiation]
COMPANIES: [Acme Corp, Globex Inc]
EDUCATION: []
LOCATIONS: [New York]
DATES: [2024-01-01]
PROJECTS: []
TECHNOLOGIES: []

RELATIONSHIPS:
[Jane Doe | works_at | Acme Corp]
[Acme Corp | partners_with | Globex Inc]

TOPICS: [contracts, business]`

	out := ParseDetailedResponse(resp)
	require.Contains(t, out.Summary, "services agreement")
	require.Equal(t, "services, agreement, renewal", out.Keywords)
	require.ElementsMatch(t, []string{"Jane Doe", "John Smith"}, out.EntitiesStructured["person"])
	require.ElementsMatch(t, []string{"Acme Corp", "Globex Inc"}, out.EntitiesStructured["companies"])
	require.Contains(t, out.EntitiesFlat, "Jane Doe")
	require.Len(t, out.Relationships, 2)
	require.Equal(t, "works_at", out.Relationships[0].Type)
	require.Equal(t, []string{"contracts", "business"}, out.Topics)
}

func TestParseDetailedResponseLegacyFlatEntities(t *testing.T) {
	resp := `SUMMARY:
A short resume for a software engineer.

KEYWORDS: resume, engineer

ENTITIES: [Acme Corp, Stanford University, Jane Doe]

TOPICS: [career]`

	out := ParseDetailedResponse(resp)
	require.NotEmpty(t, out.EntitiesStructured)
	require.Contains(t, out.EntitiesFlat, "Jane Doe")
}

func TestAutoCategorizeEntities(t *testing.T) {
	out := AutoCategorizeEntities([]string{"Stanford University", "Acme Inc", "Jane Doe", "python"})
	require.Contains(t, out["education"], "Stanford University")
	require.Contains(t, out["companies"], "Acme Inc")
	require.Contains(t, out["skills"], "python")
}

func TestSummarizerSummarizeFallsBackOnLLMError(t *testing.T) {
	s := &Summarizer{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	content := ExtractedContent{Text: "This is a reasonably long document body used for testing fallback behavior in the summarizer.", ContentType: "text"}
	out := s.Summarize(context.Background(), content, "notes.txt")
	require.NotEmpty(t, out.Summary)
}

func TestSummarizerSummarizeParsesTemplate(t *testing.T) {
	resp := "SUMMARY:\nA detailed description.\n\nKEYWORDS: a, b\n\nTOPICS: [x, y]"
	s := &Summarizer{LLM: newTestClient(resp, nil), Model: "m"}
	content := ExtractedContent{Text: "Some long enough text body to trigger the LLM summary path instead of the short-circuit.", ContentType: "text"}
	out := s.Summarize(context.Background(), content, "notes.txt")
	require.Equal(t, "A detailed description.", out.Summary)
	require.Equal(t, []string{"x", "y"}, out.Topics)
}
