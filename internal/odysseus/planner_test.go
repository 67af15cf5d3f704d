package odysseus

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

func TestDetectComplexitySimple(t *testing.T) {
	require.Equal(t, "simple", DetectComplexity("find invoices from acme"))
}

func TestDetectComplexityModerate(t *testing.T) {
	require.Equal(t, "moderate", DetectComplexity("what is the total revenue?"))
}

func TestDetectComplexityComplex(t *testing.T) {
	require.Equal(t, "complex", DetectComplexity("compare the revenue trend over time and explain the connection to costs?"))
}

func TestDecomposeQueryNoLLMReturnsSingleWrapped(t *testing.T) {
	p := &Planner{}
	out := p.DecomposeQuery(context.Background(), "find invoices")
	require.Len(t, out, 1)
	require.Equal(t, "find invoices", out[0].Query)
}

func TestDecomposeQueryParsesLLMResponse(t *testing.T) {
	resp := `{"sub_queries": [{"query": "find acme invoices", "purpose": "acme", "priority": 1}, {"query": "find globex invoices", "purpose": "globex", "priority": 2}]}`
	p := &Planner{LLM: newTestClient(resp, nil)}
	out := p.DecomposeQuery(context.Background(), "compare acme and globex invoices")
	require.Len(t, out, 2)
	require.Equal(t, "find acme invoices", out[0].Query)
	require.Equal(t, "find globex invoices", out[1].Query)
}

func TestDecomposeQueryFallsBackOnLLMError(t *testing.T) {
	p := &Planner{LLM: newTestClient("", errors.New("boom"))}
	out := p.DecomposeQuery(context.Background(), "find invoices")
	require.Len(t, out, 1)
}

func TestDecomposeQueryCapsAtFourSubQueries(t *testing.T) {
	resp := `{"sub_queries": [
		{"query": "a", "priority": 1}, {"query": "b", "priority": 2},
		{"query": "c", "priority": 3}, {"query": "d", "priority": 4},
		{"query": "e", "priority": 5}
	]}`
	p := &Planner{LLM: newTestClient(resp, nil)}
	out := p.DecomposeQuery(context.Background(), "query")
	require.Len(t, out, 4)
}

func TestPlanRetrievalSortsByPriorityAndAddsSynthesisStep(t *testing.T) {
	subs := []SubQuery{
		{ID: "sq_2", Query: "second", Priority: 2},
		{ID: "sq_1", Query: "first", Priority: 1},
	}
	plan := PlanRetrieval("original", subs)
	require.Equal(t, "sq_1", plan.SubQueries[0].ID)
	require.Equal(t, "sq_2", plan.SubQueries[1].ID)
	require.True(t, plan.RequiresSynthesis)
	require.Len(t, plan.Steps, 3)
	require.Equal(t, "synthesize", plan.Steps[2].Action)
}

func TestPlanRetrievalSingleSubQueryNoSynthesis(t *testing.T) {
	plan := PlanRetrieval("original", []SubQuery{{ID: "sq_1", Query: "only", Priority: 1}})
	require.False(t, plan.RequiresSynthesis)
	require.Len(t, plan.Steps, 1)
}

func TestSynthesizeAnswersEmptyYieldsNotFoundMessage(t *testing.T) {
	p := &Planner{}
	out := p.SynthesizeAnswers(context.Background(), "q", nil)
	require.Equal(t, 0.0, out.Confidence)
	require.Contains(t, out.Answer, "couldn't find")
}

func TestSynthesizeAnswersSingleReturnsDirectly(t *testing.T) {
	p := &Planner{}
	out := p.SynthesizeAnswers(context.Background(), "q", []SubAnswer{{SubQuery: SubQuery{Query: "q"}, Answer: "the answer"}})
	require.Equal(t, "the answer", out.Answer)
	require.Equal(t, 0.6, out.Confidence)
}

func TestSynthesizeAnswersMultipleFallsBackToConcatenationOnError(t *testing.T) {
	p := &Planner{LLM: newTestClient("", errors.New("boom"))}
	out := p.SynthesizeAnswers(context.Background(), "q", []SubAnswer{
		{SubQuery: SubQuery{Query: "q1"}, Answer: "answer one"},
		{SubQuery: SubQuery{Query: "q2"}, Answer: "answer two"},
	})
	require.Contains(t, out.Answer, "answer one")
	require.Contains(t, out.Answer, "answer two")
	require.Equal(t, 0.4, out.Confidence)
}

func TestSynthesizeAnswersMultipleUsesLLM(t *testing.T) {
	p := &Planner{LLM: newTestClient("combined answer", nil)}
	out := p.SynthesizeAnswers(context.Background(), "q", []SubAnswer{
		{SubQuery: SubQuery{Query: "q1"}, Answer: "answer one"},
		{SubQuery: SubQuery{Query: "q2"}, Answer: "answer two"},
	})
	require.Equal(t, "combined answer", out.Answer)
	require.Equal(t, 0.75, out.Confidence)
}

func TestExecuteReasoningLoopSkipsSimpleQueries(t *testing.T) {
	p := &Planner{}
	_, ok := p.ExecuteReasoningLoop(context.Background(), "find invoices", nil)
	require.False(t, ok)
}

func TestExecuteReasoningLoopHandlesComplexQuery(t *testing.T) {
	p := &Planner{}
	retriever := func(ctx context.Context, sq SubQuery) (SubAnswer, error) {
		return SubAnswer{SubQuery: sq, Answer: "answer for " + sq.Query}, nil
	}
	out, ok := p.ExecuteReasoningLoop(context.Background(), "compare revenue trend over time and explain the connection?", retriever)
	require.True(t, ok)
	require.NotEmpty(t, out.Answer)
}

func TestExecuteReasoningLoopSkipsFailedSubQueries(t *testing.T) {
	p := &Planner{}
	retriever := func(ctx context.Context, sq SubQuery) (SubAnswer, error) {
		return SubAnswer{}, errors.New("retrieval failed")
	}
	out, ok := p.ExecuteReasoningLoop(context.Background(), "compare revenue trend over time and explain the connection?", retriever)
	require.True(t, ok)
	require.Equal(t, 0.0, out.Confidence)
}
