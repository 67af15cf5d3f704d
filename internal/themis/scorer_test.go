package themis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/docrecord"
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

func TestScoreAnswerConfidenceWithGoodEvidence(t *testing.T) {
	answer := "The document clearly states that revenue increased specifically in Q3, according to the filed report."
	conf := ScoreAnswerConfidence(answer, 0.9, 5, &QualitySource{QualityScore: 0.9})
	require.Greater(t, conf, 0.8)
}

func TestScoreAnswerConfidenceNoSources(t *testing.T) {
	conf := ScoreAnswerConfidence("I'm not sure, it might be in the archive.", 0, 0, nil)
	require.Less(t, conf, 0.8)
}

func TestScoreAnswerConfidenceClampedToOne(t *testing.T) {
	answer := "The document states clearly and definitely, specifically, according to the report."
	conf := ScoreAnswerConfidence(answer, 1.0, 10, &QualitySource{QualityScore: 1.0})
	require.LessOrEqual(t, conf, 1.0)
}

func TestAssessEvidenceStrengthNoSources(t *testing.T) {
	e := AssessEvidenceStrength(nil)
	require.Equal(t, "none", e.Level)
	require.Equal(t, 0.0, e.Score)
}

func TestAssessEvidenceStrengthStrong(t *testing.T) {
	e := AssessEvidenceStrength([]float64{0.9, 0.8, 0.7, 0.6})
	require.Equal(t, "strong", e.Level)
	require.Equal(t, 4, e.SupportingSources)
}

func TestAssessEvidenceStrengthWeak(t *testing.T) {
	e := AssessEvidenceStrength([]float64{0.6, 0.2})
	require.Equal(t, "weak", e.Level)
}

func TestGenerateAlternativesNoLLMReturnsNil(t *testing.T) {
	s := &Scorer{}
	require.Nil(t, s.GenerateAlternatives(context.Background(), "q", "a"))
}

func TestGenerateAlternativesParsesAndCaps(t *testing.T) {
	s := &Scorer{LLM: newTestClient(`{"items": ["a", "b", "c", "d"]}`, nil)}
	out := s.GenerateAlternatives(context.Background(), "q", "a")
	require.Len(t, out, 3)
}

func TestGenerateAlternativesFallsBackOnError(t *testing.T) {
	s := &Scorer{LLM: newTestClient("", errors.New("boom"))}
	require.Nil(t, s.GenerateAlternatives(context.Background(), "q", "a"))
}

func TestSuggestFollowupsParsesAndCaps(t *testing.T) {
	s := &Scorer{LLM: newTestClient(`{"items": ["x", "y"]}`, nil)}
	out := s.SuggestFollowups(context.Background(), "q", "a", []string{"topic1", "topic2"})
	require.Equal(t, []string{"x", "y"}, out)
}

func TestCreateConfidenceAwareResponseFlagsLowConfidenceUncertainty(t *testing.T) {
	s := &Scorer{}
	sources := []docrecord.Record{{ID: "d1", Topics: []string{"finance"}}}
	resp := s.CreateConfidenceAwareResponse(context.Background(), "q", "I'm not sure, it might be unclear.", sources, []float64{0.2}, nil)
	require.NotEmpty(t, resp.UncertaintyReasons)
	require.Equal(t, 1, resp.SourcesUsed)
}

func TestCreateConfidenceAwareResponseSkipsAlternativesWhenConfident(t *testing.T) {
	s := &Scorer{}
	sources := []docrecord.Record{
		{ID: "d1", Topics: []string{"finance"}}, {ID: "d2", Topics: []string{"finance"}},
		{ID: "d3", Topics: []string{"finance"}}, {ID: "d4", Topics: []string{"finance"}},
	}
	answer := "The document states clearly and specifically, according to the filed report, that revenue grew."
	resp := s.CreateConfidenceAwareResponse(context.Background(), "q", answer, sources, []float64{0.9, 0.9, 0.9, 0.9}, &QualitySource{QualityScore: 0.9})
	require.Nil(t, resp.AlternativeInterpretations)
}
