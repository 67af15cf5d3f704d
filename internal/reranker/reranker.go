// Package reranker implements the cross-encoder reranking and
// Maximal-Marginal-Relevance diversity pass described in spec §4.5.
//
// Grounded on the teacher's internal/rag/retrieve/fusion.go (Diversify,
// the greedy incremental-selection idiom) and rerank.go's Reranker
// interface shape, generalized to the spec's sigmoid-normalized
// cross-encoder score, feedback-boost blending, and Jaccard-based MMR.
package reranker

import (
	"context"
	"math"
	"sort"
	"strings"

	"vantage/internal/retrieve"
)

// CrossEncoder scores a (query, document) pair. Implementations may call
// out to a local cross-encoder model or an LLM-as-judge; score range is
// unconstrained, Normalize squashes it into [0,1].
type CrossEncoder interface {
	Score(ctx context.Context, query, document string) (float64, error)
}

// FeedbackSource supplies the per-document feedback boost in [-1, 1]
// produced by internal/feedback.
type FeedbackSource interface {
	Boost(userID, query, docID string) float64
}

// Scored wraps a retrieve.Result with its reranked score and an
// explanation string for spec §4.5's "explain_ranking" operation.
type Scored struct {
	retrieve.Result
	RawScore    float64
	Normalized  float64
	Boosted     float64
	Explanation string
}

// Reranker is the spec §4.5 cross-encoder + feedback + MMR pipeline.
type Reranker struct {
	Encoder  CrossEncoder
	Feedback FeedbackSource

	// FeedbackBoostCap bounds the feedback contribution added to the
	// normalized cross-encoder score (spec default 0.2).
	FeedbackBoostCap float64
}

// New constructs a Reranker with spec-default parameters.
func New(encoder CrossEncoder, feedback FeedbackSource) *Reranker {
	return &Reranker{
		Encoder:          encoder,
		Feedback:         feedback,
		FeedbackBoostCap: 0.2,
	}
}

// normalize applies the logistic sigmoid s' = 1/(1+e^-s) from spec §4.5.
func normalize(s float64) float64 {
	return 1 / (1 + math.Exp(-s))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Rerank scores every item with the cross-encoder, blends in the
// feedback boost, then either sorts descending (diversityWeight == 0) or
// runs MMR diversification (diversityWeight in (0,1]) to produce the
// final ordering of up to topK items, per spec §4.5's contract
// rerank(query, candidates, top_k, diversity_weight, user_id?).
func (r *Reranker) Rerank(ctx context.Context, userID, query string, items []retrieve.Result, topK int, diversityWeight float64) ([]Scored, error) {
	scored := make([]Scored, 0, len(items))
	for _, it := range items {
		text := it.Snippet
		if it.Record != nil {
			text = it.Record.DetailedSummary + "\nKeywords: " + it.Record.Keywords
		}

		raw, err := r.Encoder.Score(ctx, query, text)
		if err != nil {
			// A single failed cross-encoder call degrades to the fused
			// retrieval score rather than dropping the item or aborting
			// the whole rerank.
			raw = it.Score
		}
		norm := normalize(raw)

		boost := 0.0
		if r.Feedback != nil {
			boost = r.Feedback.Boost(userID, query, it.ID)
		}
		cap := r.FeedbackBoostCap
		if cap == 0 {
			cap = 0.2
		}
		boosted := clamp01(norm + cap*boost)

		scored = append(scored, Scored{
			Result:      it,
			RawScore:    raw,
			Normalized:  norm,
			Boosted:     boosted,
			Explanation: Explain(boosted),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Boosted > scored[j].Boosted })

	if diversityWeight <= 0 {
		if topK > 0 && topK < len(scored) {
			scored = scored[:topK]
		}
		return scored, nil
	}
	return mmrSelect(scored, topK, diversityWeight), nil
}

// mmrSelect runs greedy Maximal Marginal Relevance selection: at each
// step, pick the candidate maximizing boosted_score -
// diversityWeight*max_similarity_to_already_selected, where similarity
// is Jaccard over keyword sets (spec §4.5 step 4).
func mmrSelect(candidates []Scored, topK int, diversityWeight float64) []Scored {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	keywordSets := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		keywordSets[i] = keywordSet(c)
	}

	selected := make([]Scored, 0, topK)
	selectedIdx := make([]int, 0, topK)
	used := make([]bool, len(candidates))

	for len(selected) < topK {
		bestIdx := -1
		bestMMR := math.Inf(-1)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range selectedIdx {
				sim := jaccard(keywordSets[i], keywordSets[j])
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmr := c.Boosted - diversityWeight*maxSim
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, candidates[bestIdx])
		selectedIdx = append(selectedIdx, bestIdx)
		used[bestIdx] = true
	}
	return selected
}

func keywordSet(c Scored) map[string]struct{} {
	set := make(map[string]struct{})
	var kw string
	if c.Record != nil {
		kw = c.Record.Keywords
	}
	for _, tok := range strings.FieldsFunc(strings.ToLower(kw), func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Explain buckets a final score into a human-readable confidence label,
// used by spec §4.5's "explain_ranking" operation. Bucket labels match
// backend/reranker.py's _generate_explanation verbatim.
func Explain(score float64) string {
	switch {
	case score >= 0.8:
		return "highly relevant"
	case score >= 0.6:
		return "moderately relevant"
	case score >= 0.4:
		return "somewhat relevant"
	default:
		return "marginally relevant"
	}
}
