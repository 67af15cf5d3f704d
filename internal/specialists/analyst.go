package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Analyst is Aristotle, the cross-document analysis specialist (spec
// §4.8). Grounded on original_source/backend/agents/analysis_agent.py.
type Analyst struct {
	LLM   *llmclient.Client
	Model string
}

// Comparison is compare_documents' result shape.
type Comparison struct {
	Similarities  []string `json:"similarities"`
	Differences   []string `json:"differences"`
	UniqueAspects []string `json:"unique_aspects"`
	Summary       string   `json:"summary"`
	Error         string   `json:"error,omitempty"`
}

// CompareDocuments contrasts up to 3 documents along optional criteria;
// fewer than two documents is a user error, not an LLM failure.
func (a *Analyst) CompareDocuments(ctx context.Context, docs []docrecord.Record, criteria string) Comparison {
	if len(docs) < 2 {
		return Comparison{Error: "Need at least 2 documents to compare"}
	}
	subset := docs
	if len(subset) > 3 {
		subset = subset[:3]
	}

	var b strings.Builder
	for i, d := range subset {
		fmt.Fprintf(&b, "Document %d (%s):\n%s\n\n", i+1, d.Filename, truncate(d.DetailedSummary, 500))
	}
	criteriaLine := "general content, themes, and key points"
	if criteria != "" {
		criteriaLine = criteria
	}
	prompt := fmt.Sprintf(
		"Compare the following documents based on %s:\n\n%s\n"+
			`Return JSON: {"similarities": [], "differences": [], "unique_aspects": [], "summary": ""}`,
		criteriaLine, b.String())

	res, err := a.LLM.Call(ctx, llmclient.CallOptions{Model: a.Model, Prompt: prompt, JSON: true, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("analyst: compare_documents failed")
		return Comparison{Error: "comparison failed"}
	}
	var out Comparison
	if err := json.Unmarshal([]byte(res.Text), &out); err != nil {
		return Comparison{Error: "comparison response was not valid JSON"}
	}
	return out
}

// Aggregation is aggregate_data's result shape.
type Aggregation struct {
	AggregationResult string   `json:"aggregation_result"`
	Breakdown         []string `json:"breakdown"`
	Insights          []string `json:"insights"`
}

// AggregateData rolls up a set of documents under aggregationType
// (e.g. "by_topic", "by_date", "by_type").
func (a *Analyst) AggregateData(ctx context.Context, docs []docrecord.Record, aggregationType string) Aggregation {
	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, d.Filename, truncate(d.DetailedSummary, 200))
	}
	prompt := fmt.Sprintf(
		"Aggregate the following %d documents %s:\n\n%s\n"+
			`Return JSON: {"aggregation_result": "", "breakdown": [], "insights": []}`,
		len(docs), aggregationType, b.String())

	res, err := a.LLM.Call(ctx, llmclient.CallOptions{Model: a.Model, Prompt: prompt, JSON: true, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("analyst: aggregate_data failed")
		return Aggregation{}
	}
	var out Aggregation
	_ = json.Unmarshal([]byte(res.Text), &out)
	return out
}

// TrendReport is detect_trends' result shape.
type TrendReport struct {
	Trends   []string `json:"trends"`
	Patterns []string `json:"patterns"`
	Insights []string `json:"insights"`
	Error    string   `json:"error,omitempty"`
}

// DetectTrends looks for temporal patterns across the subset of docs that
// carry a date, sorted chronologically and capped at 10.
func (a *Analyst) DetectTrends(ctx context.Context, docs []docrecord.Record) TrendReport {
	dated := make([]docrecord.Record, 0, len(docs))
	for _, d := range docs {
		if !d.CreatedAt.IsZero() {
			dated = append(dated, d)
		}
	}
	if len(dated) == 0 {
		return TrendReport{Error: "No dated documents available for trend analysis"}
	}
	sort.Slice(dated, func(i, j int) bool { return dated[i].CreatedAt.Before(dated[j].CreatedAt) })
	if len(dated) > 10 {
		dated = dated[:10]
	}

	var b strings.Builder
	for _, d := range dated {
		fmt.Fprintf(&b, "%s (%s): %s\n", d.CreatedAt.Format("2006-01-02"), d.Filename, truncate(d.DetailedSummary, 200))
	}
	prompt := "Analyze trends and patterns across these chronologically-ordered documents:\n\n" + b.String() +
		`Return JSON: {"trends": [], "patterns": [], "insights": []}`

	res, err := a.LLM.Call(ctx, llmclient.CallOptions{Model: a.Model, Prompt: prompt, JSON: true, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("analyst: detect_trends failed")
		return TrendReport{Error: "trend detection failed"}
	}
	var out TrendReport
	_ = json.Unmarshal([]byte(res.Text), &out)
	return out
}

// GenerateInsights produces up to 5 insights tying docs back to query.
func (a *Analyst) GenerateInsights(ctx context.Context, docs []docrecord.Record, query string) []string {
	subset := docs
	if len(subset) > 5 {
		subset = subset[:5]
	}
	var b strings.Builder
	for i, d := range subset {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, d.Filename, truncate(d.DetailedSummary, 150))
	}
	prompt := fmt.Sprintf(
		"Given the query \"%s\" and these documents:\n\n%s\n"+
			`Generate key insights. Return JSON: {"insights": []}`,
		query, b.String())

	res, err := a.LLM.Call(ctx, llmclient.CallOptions{Model: a.Model, Prompt: prompt, JSON: true, Temperature: 0.4})
	if err != nil {
		logging.Log.WithError(err).Warn("analyst: generate_insights failed")
		return nil
	}
	var out struct {
		Insights []string `json:"insights"`
	}
	_ = json.Unmarshal([]byte(res.Text), &out)
	return out.Insights
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
