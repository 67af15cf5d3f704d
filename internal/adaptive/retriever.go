// Package adaptive implements strategy classification for retrieval
// requests (spec §4.10): deciding, per query, how much weight to give
// keyword search versus vector search versus graph expansion.
//
// Grounded on original_source/backend/agents/adaptive_retriever.py
// ("Proteus - The Shape-Shifter").
package adaptive

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Strategy is one of the five retrieval strategies Proteus can select.
type Strategy string

const (
	Precise     Strategy = "precise"
	Semantic    Strategy = "semantic"
	Exploratory Strategy = "exploratory"
	Temporal    Strategy = "temporal"
	Hybrid      Strategy = "hybrid"
)

var allStrategies = []Strategy{Precise, Semantic, Exploratory, Temporal, Hybrid}

// Decision is classify_strategy's result shape.
type Decision struct {
	Primary    Strategy
	Secondary  Strategy
	Confidence float64
	Reasoning  string
	Weights    map[Strategy]float64
}

var preciseIndicators = []string{
	"exact", "specific", "called", "named", "titled", "file", "document", "pdf", "report", `"`,
}

var temporalIndicators = []string{
	"recent", "latest", "newest", "last week", "last month", "today", "yesterday",
	"this year", "2023", "2024", "2025", "before", "after", "during", "between",
}

var exploratoryIndicators = []string{
	"related to", "connected", "similar", "like", "associated", "linked", "about the same",
}

// Classify runs the heuristic indicator-keyword scorer, matching
// classify_strategy's exact factor weighting.
func Classify(query string) Decision {
	q := strings.ToLower(query)
	words := strings.Fields(q)

	scores := map[Strategy]float64{
		Precise:     0,
		Semantic:    0,
		Exploratory: 0,
		Temporal:    0,
		Hybrid:      0,
	}
	var factors []string

	preciseHits := countMatches(q, preciseIndicators)
	if preciseHits > 0 {
		scores[Precise] += float64(preciseHits) * 0.3
		factors = append(factors, "contains precise-match indicators")
	}

	temporalHits := countMatches(q, temporalIndicators)
	if temporalHits > 0 {
		scores[Temporal] += float64(temporalHits) * 0.3
		factors = append(factors, "contains temporal indicators")
	}

	exploratoryHits := countMatches(q, exploratoryIndicators)
	if exploratoryHits > 0 {
		scores[Exploratory] += float64(exploratoryHits) * 0.3
		factors = append(factors, "contains exploratory/relational indicators")
	}

	if len(words) < 4 && preciseHits == 0 && temporalHits == 0 && exploratoryHits == 0 {
		scores[Semantic] += 0.5
		factors = append(factors, "short query with no strong indicators")
	}

	if strings.HasSuffix(strings.TrimSpace(query), "?") {
		scores[Semantic] += 0.5
		factors = append(factors, "phrased as a question")
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	if total == 0 {
		for k := range scores {
			scores[k] = 0.25
		}
		total = 0.25 * float64(len(scores))
		factors = append(factors, "no distinguishing signal; defaulting to balanced scores")
	}
	normalized := make(map[Strategy]float64, len(scores))
	for k, v := range scores {
		normalized[k] = v / total
	}

	primary := argmax(normalized, "")
	secondary := argmax(normalized, primary)
	if normalized[secondary] <= 0.1 {
		secondary = ""
	}

	confidence := normalized[primary]

	return Decision{
		Primary:    primary,
		Secondary:  secondary,
		Confidence: confidence,
		Reasoning:  strings.Join(factors, "; "),
		Weights:    roundWeights(normalized),
	}
}

func countMatches(query string, indicators []string) int {
	n := 0
	for _, ind := range indicators {
		if strings.Contains(query, ind) {
			n++
		}
	}
	return n
}

func argmax(scores map[Strategy]float64, exclude Strategy) Strategy {
	best := Strategy("")
	bestScore := -1.0
	// iterate in a fixed order so ties resolve deterministically
	for _, s := range allStrategies {
		if s == exclude {
			continue
		}
		if scores[s] > bestScore {
			bestScore = scores[s]
			best = s
		}
	}
	return best
}

func roundWeights(scores map[Strategy]float64) map[Strategy]float64 {
	out := make(map[Strategy]float64, len(scores))
	for k, v := range scores {
		out[k] = float64(int(v*100+0.5)) / 100
	}
	return out
}

type llmClassification struct {
	PrimaryStrategy   string             `json:"primary_strategy"`
	SecondaryStrategy string             `json:"secondary_strategy"`
	Confidence        float64            `json:"confidence"`
	Reasoning         string             `json:"reasoning"`
	Weights           map[string]float64 `json:"weights"`
}

// ClassifyLLM asks the model to classify strategy directly, falling back
// to the heuristic Classify on any error or malformed response.
func ClassifyLLM(ctx context.Context, llm *llmclient.Client, model, query string) Decision {
	if llm == nil {
		return Classify(query)
	}
	prompt := "Classify the retrieval strategy best suited to this search query.\n\n" +
		"Query: " + query + "\n\n" +
		"Strategies: precise (exact keyword/filename match), semantic (meaning-based), " +
		"exploratory (find related/connected documents), temporal (time-sensitive), hybrid (mix of approaches).\n\n" +
		`Return JSON: {"primary_strategy": "...", "secondary_strategy": "...", "confidence": 0.0-1.0, "reasoning": "...", "weights": {"precise": 0.0, "semantic": 0.0, "exploratory": 0.0, "temporal": 0.0, "hybrid": 0.0}}`

	res, err := llm.Call(ctx, llmclient.CallOptions{Model: model, Prompt: prompt, JSON: true, Temperature: 0.2})
	if err != nil {
		logging.Log.WithError(err).Warn("adaptive: llm strategy classification failed")
		return Classify(query)
	}
	var parsed llmClassification
	if err := json.Unmarshal([]byte(res.Text), &parsed); err != nil {
		logging.Log.WithError(err).Warn("adaptive: llm strategy response unparseable")
		return Classify(query)
	}
	primary := Strategy(parsed.PrimaryStrategy)
	if !validStrategy(primary) {
		return Classify(query)
	}
	secondary := Strategy(parsed.SecondaryStrategy)
	weights := make(map[Strategy]float64, len(parsed.Weights))
	for k, v := range parsed.Weights {
		weights[Strategy(k)] = v
	}
	return Decision{
		Primary:    primary,
		Secondary:  secondary,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Weights:    weights,
	}
}

func validStrategy(s Strategy) bool {
	for _, v := range allStrategies {
		if v == s {
			return true
		}
	}
	return false
}

// Params are the per-strategy retrieval weights and thresholds returned
// by get_strategy_params.
type Params struct {
	UseBM25      bool
	UseVector    bool
	UseGraph     bool
	BM25Weight   float64
	VectorWeight float64
	GraphWeight  float64
	TimeWeight   float64
	MinScore     float64
	ExpandHops   int
	PreferRecent bool
}

var strategyParams = map[Strategy]Params{
	Precise:     {UseBM25: true, UseVector: false, BM25Weight: 1.0, VectorWeight: 0.0, MinScore: 0.5},
	Semantic:    {UseBM25: true, UseVector: true, BM25Weight: 0.3, VectorWeight: 0.7, MinScore: 0.3},
	Exploratory: {UseBM25: true, UseVector: true, UseGraph: true, BM25Weight: 0.2, VectorWeight: 0.5, GraphWeight: 0.3, ExpandHops: 2, MinScore: 0.2},
	Temporal:    {UseBM25: true, UseVector: true, BM25Weight: 0.4, VectorWeight: 0.4, TimeWeight: 0.2, PreferRecent: true, MinScore: 0.3},
	Hybrid:      {UseBM25: true, UseVector: true, BM25Weight: 0.5, VectorWeight: 0.5, MinScore: 0.3},
}

// GetStrategyParams returns the static retrieval parameters for strategy,
// defaulting to Hybrid for an unrecognized value.
func GetStrategyParams(strategy Strategy) Params {
	if p, ok := strategyParams[strategy]; ok {
		return p
	}
	return strategyParams[Hybrid]
}

// AgentInfo describes Proteus for the orchestrator's capability listing.
type AgentInfo struct {
	Name        string
	Description string
	Strategies  []Strategy
}

// GetAgentInfo mirrors get_agent_info.
func GetAgentInfo() AgentInfo {
	strategies := make([]Strategy, len(allStrategies))
	copy(strategies, allStrategies)
	sort.Slice(strategies, func(i, j int) bool { return strategies[i] < strategies[j] })
	return AgentInfo{
		Name:        "Proteus",
		Description: "Classifies queries into retrieval strategies and supplies per-strategy search weights.",
		Strategies:  strategies,
	}
}
