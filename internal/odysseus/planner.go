// Package odysseus implements multi-step query decomposition and answer
// synthesis (spec §4.10): breaking a complex query into sub-queries,
// planning retrieval steps for each, and combining sub-answers into one
// coherent response.
//
// Grounded on original_source/backend/agents/reasoning_planner.py
// ("Odysseus - The Strategic Planner").
package odysseus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// SubQuery is one decomposed piece of an original query.
type SubQuery struct {
	ID             string
	Query          string
	Purpose        string
	Dependencies   []string
	Priority       int
	EstimatedType  string
}

// RetrievalStep is one planned action against a sub-query.
type RetrievalStep struct {
	StepID         string
	Action         string
	SubQueryID     string
	ExpectedOutput string
	Completed      bool
	Result         string
}

// Plan is plan_retrieval's result shape.
type Plan struct {
	OriginalQuery     string
	Complexity        string
	SubQueries        []SubQuery
	Steps             []RetrievalStep
	RequiresSynthesis bool
}

// SubAnswer pairs a sub-query with the answer retrieval produced for it.
type SubAnswer struct {
	SubQuery SubQuery
	Answer   string
	Sources  []string
}

// SynthesizedAnswer is synthesize_answers' result shape.
type SynthesizedAnswer struct {
	Answer         string
	SubAnswers     []SubAnswer
	Confidence     float64
	ReasoningTrace []string
}

var complexPatterns = []string{
	"compare", "difference between", "versus", "vs.", "relationship between",
	"how does", "why does", "what caused", "explain the connection",
	"summarize all", "across all", "over time", "trend",
}

// DetectComplexity scores a query's structural complexity from keyword
// patterns, question-mark count, and conjunction count.
func DetectComplexity(query string) string {
	q := strings.ToLower(query)
	score := 0
	for _, p := range complexPatterns {
		if strings.Contains(q, p) {
			score++
		}
	}
	score += strings.Count(q, "?")
	score += strings.Count(q, " and ")

	switch {
	case score >= 3:
		return "complex"
	case score >= 1:
		return "moderate"
	default:
		return "simple"
	}
}

type decomposeResponse struct {
	SubQueries []struct {
		Query        string   `json:"query"`
		Purpose      string   `json:"purpose"`
		Dependencies []string `json:"dependencies"`
		Priority     int      `json:"priority"`
	} `json:"sub_queries"`
}

// Planner is Odysseus.
type Planner struct {
	LLM   *llmclient.Client
	Model string
}

// DecomposeQuery asks the LLM to break query into up to 4 sub-queries,
// falling back to a single sub-query wrapping the original on any
// failure.
func (p *Planner) DecomposeQuery(ctx context.Context, query string) []SubQuery {
	fallback := []SubQuery{{ID: "sq_1", Query: query, Purpose: "answer the original query", Priority: 1, EstimatedType: "general"}}
	if p.LLM == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Break this complex query into at most 4 simpler, independently searchable sub-queries.\n\n"+
			"Query: %q\n\n"+
			`Return JSON: {"sub_queries": [{"query": "...", "purpose": "...", "dependencies": [], "priority": 1}]}`,
		query)

	res, err := p.LLM.Call(ctx, llmclient.CallOptions{Model: p.Model, Prompt: prompt, JSON: true, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("odysseus: query decomposition failed")
		return fallback
	}
	var parsed decomposeResponse
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil || len(parsed.SubQueries) == 0 {
		if err != nil {
			logging.Log.WithError(err).Warn("odysseus: decomposition response unparseable")
		}
		return fallback
	}

	items := parsed.SubQueries
	if len(items) > 4 {
		items = items[:4]
	}
	out := make([]SubQuery, 0, len(items))
	for i, sq := range items {
		priority := sq.Priority
		if priority <= 0 {
			priority = i + 1
		}
		out = append(out, SubQuery{
			ID:           "sq_" + strconv.Itoa(i+1),
			Query:        sq.Query,
			Purpose:      sq.Purpose,
			Dependencies: sq.Dependencies,
			Priority:     priority,
		})
	}
	return out
}

// PlanRetrieval builds a RetrievalStep per sub-query (sorted by
// priority), appending a synthesis step whenever more than one
// sub-query is present.
func PlanRetrieval(originalQuery string, subQueries []SubQuery) Plan {
	sorted := make([]SubQuery, len(subQueries))
	copy(sorted, subQueries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	steps := make([]RetrievalStep, 0, len(sorted)+1)
	for i, sq := range sorted {
		steps = append(steps, RetrievalStep{
			StepID:         "step_" + strconv.Itoa(i+1),
			Action:         "retrieve",
			SubQueryID:     sq.ID,
			ExpectedOutput: "documents relevant to: " + sq.Query,
		})
	}
	requiresSynthesis := len(sorted) > 1
	if requiresSynthesis {
		steps = append(steps, RetrievalStep{
			StepID:         "step_" + strconv.Itoa(len(sorted)+1),
			Action:         "synthesize",
			ExpectedOutput: "a single coherent answer combining all sub-query results",
		})
	}

	return Plan{
		OriginalQuery:     originalQuery,
		Complexity:        DetectComplexity(originalQuery),
		SubQueries:        sorted,
		Steps:             steps,
		RequiresSynthesis: requiresSynthesis,
	}
}

// SynthesizeAnswers combines sub-answers into a single coherent answer
// via the LLM, falling back to plain concatenation on error and to a
// fixed not-found message when there is nothing to synthesize.
func (p *Planner) SynthesizeAnswers(ctx context.Context, originalQuery string, subAnswers []SubAnswer) SynthesizedAnswer {
	if len(subAnswers) == 0 {
		return SynthesizedAnswer{
			Answer:         "I couldn't find enough information to answer this query.",
			Confidence:     0,
			ReasoningTrace: []string{"no sub-answers were produced"},
		}
	}
	if len(subAnswers) == 1 {
		return SynthesizedAnswer{
			Answer:         subAnswers[0].Answer,
			SubAnswers:     subAnswers,
			Confidence:     0.6,
			ReasoningTrace: []string{"single sub-query answered directly"},
		}
	}

	if p.LLM == nil {
		return concatenateFallback(originalQuery, subAnswers)
	}

	var parts []string
	for _, sa := range subAnswers {
		parts = append(parts, fmt.Sprintf("Sub-question: %s\nAnswer: %s", sa.SubQuery.Query, sa.Answer))
	}
	prompt := fmt.Sprintf(
		"Combine these sub-answers into one coherent answer to the original question.\n\n"+
			"Original question: %q\n\n%s\n\n"+
			"Write a single well-organized answer.",
		originalQuery, strings.Join(parts, "\n\n"))

	res, err := p.LLM.Call(ctx, llmclient.CallOptions{Model: p.Model, Prompt: prompt, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("odysseus: answer synthesis failed")
		return concatenateFallback(originalQuery, subAnswers)
	}
	return SynthesizedAnswer{
		Answer:         strings.TrimSpace(res.Text),
		SubAnswers:     subAnswers,
		Confidence:     0.75,
		ReasoningTrace: []string{fmt.Sprintf("synthesized %d sub-answers via llm", len(subAnswers))},
	}
}

func concatenateFallback(originalQuery string, subAnswers []SubAnswer) SynthesizedAnswer {
	var b strings.Builder
	for i, sa := range subAnswers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sa.Answer)
	}
	return SynthesizedAnswer{
		Answer:         b.String(),
		SubAnswers:     subAnswers,
		Confidence:     0.4,
		ReasoningTrace: []string{"llm synthesis unavailable; concatenated sub-answers"},
	}
}

// RetrieverFunc performs one retrieval+answer pass for a sub-query.
type RetrieverFunc func(ctx context.Context, subQuery SubQuery) (SubAnswer, error)

// ExecuteReasoningLoop runs the ReAct-style decompose/retrieve/synthesize
// cycle: simple queries are left for the caller's normal flow (returns
// ok=false), moderate/complex queries are decomposed, each sub-query is
// retrieved via retrieverFunc, and results are synthesized.
func (p *Planner) ExecuteReasoningLoop(ctx context.Context, query string, retrieverFunc RetrieverFunc) (SynthesizedAnswer, bool) {
	complexity := DetectComplexity(query)
	if complexity == "simple" {
		return SynthesizedAnswer{}, false
	}

	subQueries := p.DecomposeQuery(ctx, query)
	plan := PlanRetrieval(query, subQueries)

	var subAnswers []SubAnswer
	for _, sq := range plan.SubQueries {
		sa, err := retrieverFunc(ctx, sq)
		if err != nil {
			logging.Log.WithError(err).WithField("sub_query", sq.Query).Warn("odysseus: sub-query retrieval failed")
			continue
		}
		subAnswers = append(subAnswers, sa)
	}

	return p.SynthesizeAnswers(ctx, query, subAnswers), true
}
