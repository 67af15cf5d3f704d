package adaptive

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

func TestClassifyPreciseIndicators(t *testing.T) {
	d := Classify(`find the document called "Q3 Financial Report.pdf"`)
	require.Equal(t, Precise, d.Primary)
}

func TestClassifyTemporalIndicators(t *testing.T) {
	d := Classify("show me the latest reports from last week")
	require.Equal(t, Temporal, d.Primary)
}

func TestClassifyExploratoryIndicators(t *testing.T) {
	d := Classify("contracts related to the acme merger")
	require.Equal(t, Exploratory, d.Primary)
}

func TestClassifyShortQueryLeansSemantic(t *testing.T) {
	d := Classify("tax stuff")
	require.Equal(t, Semantic, d.Primary)
}

func TestClassifyQuestionLeansSemantic(t *testing.T) {
	d := Classify("what happened during the onboarding process?")
	require.Equal(t, Semantic, d.Primary)
}

func TestClassifyNoSignalDefaultsToBalancedWeights(t *testing.T) {
	d := Classify("quarterly tax planning notes")
	require.InDelta(t, 0.2, d.Weights[Precise], 1e-9)
	require.InDelta(t, 0.2, d.Weights[Hybrid], 1e-9)
}

func TestClassifyWeightsSumToOne(t *testing.T) {
	d := Classify(`find the exact document called "invoice.pdf"`)
	var total float64
	for _, w := range d.Weights {
		total += w
	}
	require.InDelta(t, 1.0, total, 0.05)
}

func TestClassifyLLMFallsBackOnError(t *testing.T) {
	client := newTestClient("", errors.New("boom"))
	d := ClassifyLLM(context.Background(), client, "", `find the document called "report.pdf"`)
	require.Equal(t, Precise, d.Primary)
}

func TestClassifyLLMFallsBackOnInvalidStrategy(t *testing.T) {
	client := newTestClient(`{"primary_strategy": "nonsense", "confidence": 0.9}`, nil)
	d := ClassifyLLM(context.Background(), client, "", `find the document called "report.pdf"`)
	require.Equal(t, Precise, d.Primary)
}

func TestClassifyLLMUsesParsedDecision(t *testing.T) {
	client := newTestClient(`{"primary_strategy": "exploratory", "secondary_strategy": "semantic", "confidence": 0.8, "reasoning": "mentions related documents"}`, nil)
	d := ClassifyLLM(context.Background(), client, "", "anything")
	require.Equal(t, Exploratory, d.Primary)
	require.Equal(t, Semantic, d.Secondary)
	require.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestGetStrategyParamsPrecise(t *testing.T) {
	p := GetStrategyParams(Precise)
	require.True(t, p.UseBM25)
	require.False(t, p.UseVector)
	require.InDelta(t, 1.0, p.BM25Weight, 1e-9)
}

func TestGetStrategyParamsExploratoryUsesGraph(t *testing.T) {
	p := GetStrategyParams(Exploratory)
	require.True(t, p.UseGraph)
	require.Equal(t, 2, p.ExpandHops)
}

func TestGetStrategyParamsUnknownDefaultsToHybrid(t *testing.T) {
	p := GetStrategyParams(Strategy("bogus"))
	require.Equal(t, strategyParams[Hybrid], p)
}

func TestGetAgentInfoListsAllStrategiesSorted(t *testing.T) {
	info := GetAgentInfo()
	require.Len(t, info.Strategies, 5)
	require.Equal(t, []Strategy{Exploratory, Hybrid, Precise, Semantic, Temporal}, info.Strategies)
	require.Equal(t, "Proteus", info.Name)
}
