// Package sisyphus implements the corrective-RAG retrieval controller
// (spec §4.9): retrieve, score quality, reformulate and retry up to a
// bounded number of iterations, keeping the best-quality attempt seen.
//
// Grounded on original_source/backend/agents/retrieval_controller.py
// ("Sisyphus - The Persistent One").
package sisyphus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
	"vantage/internal/retrieve"
	"vantage/internal/specialists"
)

// SearchFunc performs one retrieval attempt; a nil result slice is treated
// as no results rather than an error.
type SearchFunc func(ctx context.Context, query string, filters retrieve.Filters, userID string) ([]retrieve.Result, error)

// Attempt records one iteration of the correction loop.
type Attempt struct {
	Iteration             int
	Query                 string
	Results               []retrieve.Result
	QualityScore          float64
	Issues                []string
	ReformulationApplied  bool
	Timestamp             time.Time
}

// CorrectedResults is retrieve_with_correction's return shape.
type CorrectedResults struct {
	FinalResults          []retrieve.Result
	FinalQuery            string
	OriginalQuery         string
	TotalIterations       int
	Attempts              []Attempt
	FinalQuality          float64
	WasReformulated       bool
	ImprovementPercentage float64
}

// StepCallback reports loop progress, mirroring the original's step_callback.
type StepCallback func(agent, status, detail string)

// Controller is Sisyphus. Critic and LLM are both optional: a nil Critic
// falls back to the heuristic quality score below; a nil LLM skips
// LLM-based reformulation and goes straight to the rule-based fallback.
type Controller struct {
	Critic           *specialists.Critic
	Search           SearchFunc
	LLM              *llmclient.Client
	Model            string
	MaxIterations    int
	QualityThreshold float64
}

// New builds a Controller with the original's defaults (3 iterations,
// quality threshold 0.6).
func New(search SearchFunc, critic *specialists.Critic, llm *llmclient.Client, model string) *Controller {
	return &Controller{
		Critic:           critic,
		Search:           search,
		LLM:              llm,
		Model:            model,
		MaxIterations:    3,
		QualityThreshold: 0.6,
	}
}

// RetrieveWithCorrection runs the CRAG loop: retrieve, evaluate, and
// reformulate until quality clears the threshold or iterations run out,
// returning the best-quality attempt's results.
func (c *Controller) RetrieveWithCorrection(ctx context.Context, query string, filters retrieve.Filters, userID string, step StepCallback) CorrectedResults {
	maxIter := c.MaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	threshold := c.QualityThreshold
	if threshold <= 0 {
		threshold = 0.6
	}

	originalQuery := query
	currentQuery := query
	var attempts []Attempt
	var bestResults []retrieve.Result
	bestQuality := 0.0

	for iteration := 1; iteration <= maxIter; iteration++ {
		if step != nil {
			step("Sisyphus", fmt.Sprintf("Iteration %d/%d", iteration, maxIter), fmt.Sprintf("Searching with: %q", truncateRunes(currentQuery, 50)))
		}

		var results []retrieve.Result
		if c.Search != nil {
			r, err := c.Search(ctx, currentQuery, filters, userID)
			if err != nil {
				logging.Log.WithError(err).WithField("iteration", iteration).Warn("sisyphus: search failed")
			} else {
				results = r
			}
		}

		quality, issues := c.evaluateQuality(ctx, currentQuery, results)

		attempt := Attempt{
			Iteration:            iteration,
			Query:                currentQuery,
			Results:              results,
			QualityScore:         quality,
			Issues:               issues,
			ReformulationApplied: iteration > 1,
			Timestamp:            time.Now(),
		}
		attempts = append(attempts, attempt)

		if quality > bestQuality {
			bestQuality = quality
			bestResults = results
		}

		if step != nil {
			step("Sisyphus", fmt.Sprintf("Quality: %.0f%%", quality*100), fmt.Sprintf("Found %d results", len(results)))
		}

		if quality >= threshold {
			logging.Log.WithField("iteration", iteration).Info("sisyphus: quality threshold met")
			break
		}

		if iteration < maxIter {
			if step != nil {
				step("Sisyphus", "Reformulating Query", "Issues: "+strings.Join(firstN(issues, 2), ", "))
			}
			reformulated := c.reformulateQuery(ctx, originalQuery, currentQuery, issues, results)
			if reformulated != "" && reformulated != currentQuery {
				currentQuery = reformulated
			}
		}
	}

	initialQuality := 0.0
	if len(attempts) > 0 {
		initialQuality = attempts[0].QualityScore
	}
	denom := initialQuality
	if denom < 0.01 {
		denom = 0.01
	}
	improvement := ((bestQuality - initialQuality) / denom) * 100
	if improvement < 0 {
		improvement = 0
	}

	return CorrectedResults{
		FinalResults:          bestResults,
		FinalQuery:            currentQuery,
		OriginalQuery:         originalQuery,
		TotalIterations:       len(attempts),
		Attempts:              attempts,
		FinalQuality:          bestQuality,
		WasReformulated:       currentQuery != originalQuery,
		ImprovementPercentage: improvement,
	}
}

// evaluateQuality prefers the critic's judgment when available, degrading
// to the heuristic scorer on any critic error (spec §4.9's evaluate_quality
// contract: never block the loop on a critic failure).
func (c *Controller) evaluateQuality(ctx context.Context, query string, results []retrieve.Result) (float64, []string) {
	if len(results) == 0 {
		return 0.0, []string{"No results found"}
	}
	if c.Critic != nil {
		docs := make([]docrecord.Record, 0, len(results))
		for _, r := range results {
			if r.Record != nil {
				docs = append(docs, *r.Record)
			}
		}
		if len(docs) > 0 {
			eval := c.Critic.EvaluateResults(ctx, query, docs)
			return eval.QualityScore, eval.Weaknesses
		}
	}
	return heuristicQuality(query, results)
}

// heuristicQuality is the fallback scorer: a base score plus bonuses for
// result count, average fused score, and query-term overlap with the top
// 5 results' summaries/filenames.
func heuristicQuality(query string, results []retrieve.Result) (float64, []string) {
	var issues []string
	quality := 0.3

	switch {
	case len(results) >= 5:
		quality += 0.2
	case len(results) >= 2:
		quality += 0.1
	default:
		issues = append(issues, "Too few results")
	}

	var sum float64
	var n int
	for _, r := range results {
		if r.Score != 0 {
			sum += r.Score
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		switch {
		case avg >= 0.7:
			quality += 0.3
		case avg >= 0.5:
			quality += 0.15
		default:
			issues = append(issues, "Low relevance scores")
		}
	}

	terms := uniqueLowerFields(query)
	matches := 0
	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	for _, r := range top {
		content := strings.ToLower(r.Snippet + " " + r.ID)
		if r.Record != nil {
			content = strings.ToLower(r.Record.DetailedSummary + " " + r.Record.Filename)
		}
		for _, t := range terms {
			if strings.Contains(content, t) {
				matches++
				break
			}
		}
	}
	switch {
	case matches >= 3:
		quality += 0.2
	case matches >= 1:
		quality += 0.1
	default:
		issues = append(issues, "Query terms not well matched")
	}

	if quality > 1.0 {
		quality = 1.0
	}
	return quality, issues
}

// reformulateQuery asks the LLM for a single improved query and falls
// back to the rule-based simpleReformulation on any failure.
func (c *Controller) reformulateQuery(ctx context.Context, originalQuery, currentQuery string, issues []string, results []retrieve.Result) string {
	if c.LLM == nil {
		return simpleReformulation(originalQuery, issues)
	}

	var topTerms []string
	seen := map[string]struct{}{}
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	for _, r := range top {
		if r.Record == nil || r.Record.Keywords == "" {
			continue
		}
		kws := strings.Split(r.Record.Keywords, ",")
		if len(kws) > 3 {
			kws = kws[:3]
		}
		for _, k := range kws {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				topTerms = append(topTerms, k)
			}
		}
	}
	sort.Strings(topTerms)
	if len(topTerms) > 5 {
		topTerms = topTerms[:5]
	}
	resultContext := ""
	if len(topTerms) > 0 {
		resultContext = "\nTerms from partial matches: " + strings.Join(topTerms, ", ")
	}

	prompt := fmt.Sprintf(
		"You are a search query optimizer. The user's search didn't return good results.\n\n"+
			"Original query: %q\nCurrent query: %q\nIssues: %s\n%s\n\n"+
			"Generate a SINGLE improved search query that:\n"+
			"1. Keeps the original intent\n"+
			"2. Addresses the issues\n"+
			"3. Uses different keywords or phrasing\n"+
			"4. Is concise (under 15 words)\n\n"+
			"Return ONLY the new query, nothing else.",
		originalQuery, currentQuery, strings.Join(issues, ", "), resultContext)

	res, err := c.LLM.Call(ctx, llmclient.CallOptions{Model: c.Model, Prompt: prompt, Temperature: 0.7})
	if err != nil {
		logging.Log.WithError(err).Warn("sisyphus: query reformulation failed")
		return simpleReformulation(originalQuery, issues)
	}
	reformulated := strings.Trim(strings.TrimSpace(res.Text), `"'`)
	if reformulated != "" && len(reformulated) < 200 {
		return reformulated
	}
	return simpleReformulation(originalQuery, issues)
}

var reformulationSynonyms = map[string]string{
	"find":  "search",
	"show":  "display",
	"get":   "retrieve",
	"about": "regarding",
}

// simpleReformulation is the rule-based fallback: broaden an over-specific
// query to its first 3 words, or swap the first recognized verb for a
// synonym.
func simpleReformulation(query string, issues []string) string {
	words := strings.Fields(query)

	if containsIssue(issues, "Too few results") && len(words) > 3 {
		return strings.Join(words[:3], " ")
	}

	for _, w := range words {
		if syn, ok := reformulationSynonyms[strings.ToLower(w)]; ok {
			return strings.Replace(query, w, syn, 1)
		}
	}
	return query
}

func containsIssue(issues []string, target string) bool {
	for _, i := range issues {
		if i == target {
			return true
		}
	}
	return false
}

// ShouldUseCorrection decides whether the correction loop is worth
// running: few/no initial results, a low average score, or a query
// complex enough (>8 words, or containing "?") to likely need retries.
func ShouldUseCorrection(query string, initialResults []retrieve.Result) bool {
	if len(initialResults) == 0 {
		return true
	}
	if len(initialResults) < 3 {
		return true
	}
	var sum float64
	for _, r := range initialResults {
		sum += r.Score
	}
	if sum/float64(len(initialResults)) < 0.5 {
		return true
	}
	if len(strings.Fields(query)) > 8 || strings.Contains(query, "?") {
		return true
	}
	return false
}

func firstN(ss []string, n int) []string {
	if n >= len(ss) {
		return ss
	}
	return ss[:n]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func uniqueLowerFields(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	seen := map[string]struct{}{}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
