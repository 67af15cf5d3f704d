package daedalus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/llm"
	"vantage/internal/llmclient"
	"vantage/internal/zeus"
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

func TestHypatiaAnalyzeFallsBackOnLLMError(t *testing.T) {
	h := &Hypatia{LLM: newTestClient("", errors.New("boom")), Model: "m"}
	a := h.Analyze(context.Background(), "This is an invoice for services rendered.", "invoice_march.pdf")
	require.Equal(t, "invoice", a.DocumentType)
}

func TestHypatiaAnalyzeParsesLLMJSON(t *testing.T) {
	resp := `{"document_type":"contract","primary_language":"English","topics":["leasing"],"entities":{"persons":["Jane"]},"key_themes":["renewal"],"complexity_score":0.4,"summary_context":"A lease contract"}`
	h := &Hypatia{LLM: newTestClient(resp, nil), Model: "m"}
	a := h.Analyze(context.Background(), "lease text", "lease.pdf")
	require.Equal(t, "contract", a.DocumentType)
	require.Equal(t, []string{"leasing"}, a.Topics)
}

func TestMnemosyneExtractInsightsFallsBackOnBadJSON(t *testing.T) {
	m := &Mnemosyne{LLM: newTestClient("not json", nil), Model: "m"}
	ins := m.ExtractInsights(context.Background(), "First sentence. Second sentence. Third sentence.", "report")
	require.NotEmpty(t, ins.ExecutiveSummary)
}

func TestOrchestratorProcessQueryCachesPerDocument(t *testing.T) {
	analysisResp := `{"document_type":"report","primary_language":"English","summary_context":"ctx"}`
	insightsResp := `{"executive_summary":"summary","key_points":["point one"]}`
	// first call returns analysis, second returns insights, third+ answer text.
	provider := &sequencedProvider{responses: []string{analysisResp, insightsResp, "This is the final answer to the question about the document."}}
	llmc := llmclient.New(provider, nil)

	o := New(&Hypatia{LLM: llmc, Model: "m"}, &Mnemosyne{LLM: llmc, Model: "m"}, llmc, "m", nil)
	attached := []zeus.AttachedDocument{{ID: "doc1", Filename: "f.txt", RawText: "some content"}}

	resp, err := o.ProcessQuery(context.Background(), "what does it say?", attached, nil)
	require.NoError(t, err)
	require.Contains(t, resp.Answer, "final answer")
	require.Len(t, resp.Sources, 1)
	require.GreaterOrEqual(t, resp.Confidence, 0.8)

	_, cached := o.cache["doc1"]
	require.True(t, cached)
}

func TestProcessQueryNoDocuments(t *testing.T) {
	o := New(&Hypatia{}, &Mnemosyne{}, nil, "m", nil)
	resp, err := o.ProcessQuery(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	require.Contains(t, resp.Answer, "No documents")
}

// sequencedProvider returns successive canned responses on each call,
// repeating the last once exhausted.
type sequencedProvider struct {
	responses []string
	idx       int
}

func (s *sequencedProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	i := s.idx
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.idx++
	return llm.Message{Role: "assistant", Content: s.responses[i]}, nil
}

func (s *sequencedProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("not implemented")
}
