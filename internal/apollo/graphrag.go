// Package apollo implements graph-enhanced retrieval (spec §4.10): query
// expansion via the knowledge graph and entity-aware context formatting.
//
// Grounded on original_source/backend/agents/graph_rag_agent.py
// ("Apollo - The Illuminated One").
package apollo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"vantage/internal/graph"
	"vantage/internal/logging"
	"vantage/internal/retrieve"
)

// Expansion is expand_query's result shape.
type Expansion struct {
	OriginalEntities []string
	ExpandedEntities []string
	RelatedDocuments []string
	ExpansionPath    []PathStep
}

// PathStep records one hop of query expansion, for UI display.
type PathStep struct {
	Step             string // "matched" or "expanded"
	Entity           string
	From             string
	To               string
	RelationshipType string
	Distance         int
}

// Result is enhance_retrieval's result shape.
type Result struct {
	ExpandedQuery string
	OriginalQuery string
	Expansion     Expansion
	GraphContext  string
	Confidence    float64
}

// Agent is Apollo.
type Agent struct {
	Graph *graph.Graph
}

// New builds an Agent around an existing knowledge graph.
func New(g *graph.Graph) *Agent {
	return &Agent{Graph: g}
}

// ExpandQuery resolves extractedEntities against the graph and walks up
// to maxHops outward, capping the number of newly-added entity names at
// maxExpansion.
func (a *Agent) ExpandQuery(ctx context.Context, extractedEntities []string, maxHops, maxExpansion int) Expansion {
	if maxHops <= 0 {
		maxHops = 2
	}
	if maxExpansion <= 0 {
		maxExpansion = 10
	}

	var path []PathStep
	relatedDocs := map[string]struct{}{}
	expandedNames := map[string]struct{}{}
	for _, e := range extractedEntities {
		expandedNames[e] = struct{}{}
	}

	var matched []graph.Entity
	for _, name := range extractedEntities {
		found := a.Graph.FindEntitiesByName(name)
		if len(found) == 0 {
			continue
		}
		matched = append(matched, found...)
		ids := make([]string, 0, len(found))
		for _, f := range found {
			ids = append(ids, f.ID)
		}
		path = append(path, PathStep{Step: "matched", Entity: name})
		_ = ids
	}

	budget := len(extractedEntities) + maxExpansion
	for _, ent := range matched {
		for _, d := range ent.DocumentIDs {
			relatedDocs[d] = struct{}{}
		}
		related, err := a.Graph.RelatedEntities(ctx, ent.ID, maxHops)
		if err != nil {
			logging.Log.WithError(err).Warn("apollo: graph traversal failed")
			continue
		}
		for _, r := range related {
			if len(expandedNames) >= budget {
				break
			}
			expandedNames[r.Entity.Name] = struct{}{}
			for _, d := range r.Entity.DocumentIDs {
				relatedDocs[d] = struct{}{}
			}
			path = append(path, PathStep{
				Step:             "expanded",
				From:             ent.Name,
				To:               r.Entity.Name,
				RelationshipType: r.RelationshipType,
				Distance:         r.Distance,
			})
		}
	}

	expanded := make([]string, 0, len(expandedNames))
	for n := range expandedNames {
		expanded = append(expanded, n)
	}
	sort.Strings(expanded)

	docs := make([]string, 0, len(relatedDocs))
	for d := range relatedDocs {
		docs = append(docs, d)
	}
	sort.Strings(docs)

	return Expansion{
		OriginalEntities: extractedEntities,
		ExpandedEntities: expanded,
		RelatedDocuments: docs,
		ExpansionPath:    path,
	}
}

// EnhanceRetrieval expands query, builds a prompt-ready graph context
// string, and scores confidence in the expansion based on graph coverage
// and overlap with the supplied search results.
func (a *Agent) EnhanceRetrieval(ctx context.Context, query string, extractedEntities []string, searchResults []retrieve.Result) Result {
	expansion := a.ExpandQuery(ctx, extractedEntities, 2, 10)

	expandedQuery := query
	if !sameSet(expansion.ExpandedEntities, expansion.OriginalEntities) {
		additional := subtract(expansion.ExpandedEntities, expansion.OriginalEntities)
		if len(additional) > 5 {
			additional = additional[:5]
		}
		if len(additional) > 0 {
			expandedQuery = fmt.Sprintf("%s (related: %s)", query, strings.Join(additional, ", "))
		}
	}

	return Result{
		ExpandedQuery: expandedQuery,
		OriginalQuery: query,
		Expansion:     expansion,
		GraphContext:  formatGraphContext(expansion),
		Confidence:    calculateConfidence(expansion, searchResults),
	}
}

func formatGraphContext(e Expansion) string {
	var lines []string
	expanded := 0
	for _, p := range e.ExpansionPath {
		if p.Step == "expanded" {
			expanded++
		}
	}
	if expanded > 0 {
		lines = append(lines, fmt.Sprintf("Related entities discovered: %d", expanded))
	}
	return strings.Join(lines, "\n")
}

func calculateConfidence(e Expansion, searchResults []retrieve.Result) float64 {
	if len(e.OriginalEntities) == 0 {
		return 0.5
	}
	matched := 0
	for _, p := range e.ExpansionPath {
		if p.Step == "matched" {
			matched++
		}
	}
	graphCoverage := float64(matched) / float64(len(e.OriginalEntities))

	resultIDs := map[string]struct{}{}
	for _, r := range searchResults {
		if r.ID != "" {
			resultIDs[r.ID] = struct{}{}
		}
	}
	graphDocIDs := map[string]struct{}{}
	for _, d := range e.RelatedDocuments {
		graphDocIDs[d] = struct{}{}
	}

	docOverlap := 0.0
	if len(resultIDs) > 0 && len(graphDocIDs) > 0 {
		overlap := 0
		for id := range resultIDs {
			if _, ok := graphDocIDs[id]; ok {
				overlap++
			}
		}
		docOverlap = float64(overlap) / float64(len(resultIDs))
	}

	confidence := 0.5 + graphCoverage*0.3 + docOverlap*0.2
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// IndexDocumentEntities records entities extracted from a document into
// the graph and links every pair of co-occurring entities with a
// RELATED_TO edge (a simplified stand-in for the original's dedicated
// relationship extractor, which requires an LLM call per document).
func (a *Agent) IndexDocumentEntities(ctx context.Context, documentID string, names []string, entityType string) ([]graph.Entity, error) {
	entities := make([]graph.Entity, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		existing := a.Graph.FindEntitiesByName(name)
		var id string
		if len(existing) > 0 {
			id = existing[0].ID
		} else {
			id = graph.NewEntityID(entityType, name, documentID)
		}
		ent, err := a.Graph.AddEntity(ctx, id, name, entityType, documentID)
		if err != nil {
			return entities, err
		}
		entities = append(entities, ent)
	}

	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			if err := a.Graph.AddRelationship(ctx, entities[i].ID, entities[j].ID, "RELATED_TO", 1.0, documentID); err != nil {
				logging.Log.WithError(err).Warn("apollo: failed to link co-occurring entities")
			}
		}
	}
	return entities, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := make(map[string]struct{}, len(a))
	for _, v := range a {
		sa[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := sa[v]; !ok {
			return false
		}
	}
	return true
}

func subtract(a, b []string) []string {
	sb := make(map[string]struct{}, len(b))
	for _, v := range b {
		sb[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := sb[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
