// Package themis implements confidence scoring and evidence assessment
// for generated answers (spec §4.10): how much should a user trust this
// answer, and what is it backed by.
//
// Grounded on original_source/backend/agents/confidence_scorer.py
// ("Themis - Goddess of Justice").
package themis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// QualitySource is the minimal shape Themis needs from an upstream
// quality evaluation (internal/specialists.Evaluation satisfies this).
type QualitySource struct {
	QualityScore float64
}

// EvidenceStrength is assess_evidence_strength's result shape.
type EvidenceStrength struct {
	Level                string
	Score                float64
	SupportingSources     int
	ContradictingSources  int
	Explanation           string
}

// Response is create_confidence_aware_response's result shape.
type Response struct {
	Answer                    string
	Confidence                float64
	EvidenceStrength          EvidenceStrength
	AlternativeInterpretations []string
	SuggestedFollowups        []string
	UncertaintyReasons        []string
	SourcesUsed               int
}

var uncertaintyPhrases = []string{
	"i'm not sure", "might be", "possibly", "perhaps", "unclear", "couldn't find", "no information",
}

var certaintyPhrases = []string{
	"clearly", "definitely", "the document states", "according to", "specifically",
}

// ScoreAnswerConfidence combines source count, source quality, answer
// length, retrieval quality, and certainty/uncertainty phrasing into a
// single 0-1 confidence score, matching score_answer_confidence's exact
// factor weights.
func ScoreAnswerConfidence(answer string, topSourceScore float64, numSources int, quality *QualitySource) float64 {
	confidence := 0.5

	sourcesScore := min1(float64(numSources) / 5.0)
	confidence += sourcesScore * 0.2

	var sourceQualityScore float64
	if numSources > 0 {
		sourceQualityScore = min1(topSourceScore)
	}
	confidence += sourceQualityScore * 0.2

	length := len(answer)
	if length < 50 || length > 2000 {
		confidence += 0.1
	} else {
		confidence += 0.15
	}

	if quality != nil {
		confidence += quality.QualityScore * 0.2
	} else {
		confidence += 0.1
	}

	lower := strings.ToLower(answer)
	uncertainCount := countPhrases(lower, uncertaintyPhrases)
	certainCount := countPhrases(lower, certaintyPhrases)
	switch {
	case uncertainCount > certainCount:
		confidence += 0.05
	case certainCount > uncertainCount:
		confidence += 0.2
	default:
		confidence += 0.15
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return roundTo2(confidence)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func countPhrases(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}

// AssessEvidenceStrength buckets sources by relevance score into a
// qualitative strength level, matching assess_evidence_strength.
func AssessEvidenceStrength(sourceScores []float64) EvidenceStrength {
	if len(sourceScores) == 0 {
		return EvidenceStrength{Level: "none", Score: 0.0, Explanation: "No sources were retrieved for this answer."}
	}

	supporting := 0
	for _, s := range sourceScores {
		if s >= 0.5 {
			supporting++
		}
	}
	contradicting := len(sourceScores) - supporting

	var level string
	var score float64
	switch {
	case supporting >= 3:
		level = "strong"
		score = 0.8 + float64(supporting-3)*0.05
	case supporting >= 2:
		level = "moderate"
		score = 0.6
	case supporting >= 1:
		level = "weak"
		score = 0.4
	default:
		level = "none"
		score = 0.1
	}
	if score > 1 {
		score = 1
	}

	return EvidenceStrength{
		Level:                level,
		Score:                score,
		SupportingSources:    supporting,
		ContradictingSources: contradicting,
		Explanation:          fmt.Sprintf("%d of %d sources are well-aligned with the answer.", supporting, len(sourceScores)),
	}
}

// Scorer is Themis.
type Scorer struct {
	LLM   *llmclient.Client
	Model string
}

type stringListResponse struct {
	Items []string `json:"items"`
}

// GenerateAlternatives asks the LLM for up to 3 alternative
// interpretations of query/answer; callers should only invoke this when
// confidence is already below 0.6, per the original's gating.
func (s *Scorer) GenerateAlternatives(ctx context.Context, query, answer string) []string {
	if s.LLM == nil {
		return nil
	}
	prompt := fmt.Sprintf(
		"The confidence in this answer is low. Suggest up to 3 alternative ways the query could be interpreted.\n\n"+
			"Query: %q\nAnswer given: %q\n\n"+
			`Return JSON: {"items": ["...", "..."]}`,
		query, answer)
	res, err := s.LLM.Call(ctx, llmclient.CallOptions{Model: s.Model, Prompt: prompt, JSON: true, Temperature: 0.4})
	if err != nil {
		logging.Log.WithError(err).Warn("themis: alternative generation failed")
		return nil
	}
	var parsed stringListResponse
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil {
		logging.Log.WithError(err).Warn("themis: alternatives response unparseable")
		return nil
	}
	if len(parsed.Items) > 3 {
		parsed.Items = parsed.Items[:3]
	}
	return parsed.Items
}

// SuggestFollowups asks the LLM for up to 3 natural follow-up questions
// derived from the top source topics.
func (s *Scorer) SuggestFollowups(ctx context.Context, query, answer string, topTopics []string) []string {
	if s.LLM == nil {
		return nil
	}
	if len(topTopics) > 3 {
		topTopics = topTopics[:3]
	}
	prompt := fmt.Sprintf(
		"Suggest up to 3 natural follow-up questions a user might ask next.\n\n"+
			"Query: %q\nAnswer: %q\nRelated topics: %s\n\n"+
			`Return JSON: {"items": ["...", "..."]}`,
		query, answer, strings.Join(topTopics, ", "))
	res, err := s.LLM.Call(ctx, llmclient.CallOptions{Model: s.Model, Prompt: prompt, JSON: true, Temperature: 0.4})
	if err != nil {
		logging.Log.WithError(err).Warn("themis: followup generation failed")
		return nil
	}
	var parsed stringListResponse
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil {
		logging.Log.WithError(err).Warn("themis: followups response unparseable")
		return nil
	}
	if len(parsed.Items) > 3 {
		parsed.Items = parsed.Items[:3]
	}
	return parsed.Items
}

// CreateConfidenceAwareResponse orchestrates scoring, evidence
// assessment, conditional alternative generation, followups, and
// uncertainty-reason collection into one Response.
func (s *Scorer) CreateConfidenceAwareResponse(ctx context.Context, query, answer string, sources []docrecord.Record, sourceScores []float64, quality *QualitySource) Response {
	topScore := 0.0
	if len(sourceScores) > 0 {
		topScore = sourceScores[0]
	}
	confidence := ScoreAnswerConfidence(answer, topScore, len(sources), quality)
	evidence := AssessEvidenceStrength(sourceScores)

	var alternatives []string
	if confidence < 0.6 {
		alternatives = s.GenerateAlternatives(ctx, query, answer)
	}

	var topics []string
	for i, src := range sources {
		if i >= 3 {
			break
		}
		topics = append(topics, src.Topics...)
	}
	followups := s.SuggestFollowups(ctx, query, answer, topics)

	var reasons []string
	if len(sources) < 2 {
		reasons = append(reasons, "Fewer than 2 sources were available.")
	}
	if confidence < 0.5 {
		reasons = append(reasons, "Overall confidence score is low.")
	}
	if evidence.Level == "weak" || evidence.Level == "none" {
		reasons = append(reasons, "Supporting evidence is "+evidence.Level+".")
	}

	return Response{
		Answer:                     answer,
		Confidence:                 confidence,
		EvidenceStrength:           evidence,
		AlternativeInterpretations: alternatives,
		SuggestedFollowups:         followups,
		UncertaintyReasons:         reasons,
		SourcesUsed:                len(sources),
	}
}
