// Package graph is the knowledge-graph collaborator backing internal/apollo's
// entity-aware query expansion (spec §3 / §4.10). It is a thin domain layer
// over the teacher's internal/persistence/databases.GraphDB, adding a
// name index (GraphDB has no search-by-name primitive) and bounded
// multi-hop traversal.
//
// Grounded on original_source/backend/graph/knowledge_graph.py's Entity/
// Relationship shape, adapted onto the teacher's postgres_graph.go /
// memory_graph.go GraphDB contract instead of the original's
// networkx+SQLite backend.
package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"vantage/internal/persistence/databases"
)

// Entity mirrors knowledge_graph.py's Entity dataclass.
type Entity struct {
	ID          string
	Name        string
	EntityType  string
	DocumentIDs []string
}

// RelatedEntity is one hop of a traversal result.
type RelatedEntity struct {
	Entity           Entity
	RelationshipType string
	Distance         int
}

// Graph wraps a GraphDB with entity bookkeeping. Safe for concurrent use.
type Graph struct {
	db databases.GraphDB

	mu        sync.RWMutex
	nameIndex map[string]map[string]struct{} // normalized name -> entity IDs
	entities  map[string]Entity
}

// New wraps an existing GraphDB (Postgres- or memory-backed).
func New(db databases.GraphDB) *Graph {
	return &Graph{
		db:        db,
		nameIndex: make(map[string]map[string]struct{}),
		entities:  make(map[string]Entity),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddEntity upserts an entity node and records it against document_id,
// returning the stored Entity (document_ids accumulate across calls for
// the same ID, as in the original's add_entity).
func (g *Graph) AddEntity(ctx context.Context, id, name, entityType, documentID string) (Entity, error) {
	g.mu.Lock()
	ent, existed := g.entities[id]
	if !existed {
		ent = Entity{ID: id, Name: name, EntityType: entityType}
	}
	if documentID != "" && !containsStr(ent.DocumentIDs, documentID) {
		ent.DocumentIDs = append(ent.DocumentIDs, documentID)
	}
	g.entities[id] = ent
	norm := normalizeName(name)
	if g.nameIndex[norm] == nil {
		g.nameIndex[norm] = make(map[string]struct{})
	}
	g.nameIndex[norm][id] = struct{}{}
	g.mu.Unlock()

	props := map[string]any{
		"name":         ent.Name,
		"entity_type":  ent.EntityType,
		"document_ids": ent.DocumentIDs,
	}
	if err := g.db.UpsertNode(ctx, id, []string{entityType}, props); err != nil {
		return ent, err
	}
	return ent, nil
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// AddRelationship upserts a directed, typed edge between two entities.
func (g *Graph) AddRelationship(ctx context.Context, sourceID, targetID, relationshipType string, weight float64, documentID string) error {
	props := map[string]any{"weight": weight, "document_id": documentID}
	return g.db.UpsertEdge(ctx, sourceID, relationshipType, targetID, props)
}

// FindEntitiesByName returns every known entity whose name matches name
// case-insensitively (entity resolution collapses onto this index).
func (g *Graph) FindEntitiesByName(name string) []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.nameIndex[normalizeName(name)]
	out := make([]Entity, 0, len(ids))
	for id := range ids {
		if e, ok := g.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// RelatedEntities performs a bounded BFS over the graph's edges, returning
// entities within hops distance of id, nearest first, excluding id itself.
// Only edges whose label is one of edgeTypesFor's fixed labels are
// followed; edges written under any other label are not traversed.
func (g *Graph) RelatedEntities(ctx context.Context, id string, hops int) ([]RelatedEntity, error) {
	if hops <= 0 {
		hops = 1
	}
	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	var out []RelatedEntity

	for hop := 1; hop <= hops; hop++ {
		var next []string
		for _, src := range frontier {
			for _, rel := range g.edgeTypesFor(src) {
				neighbors, err := g.db.Neighbors(ctx, src, rel)
				if err != nil {
					continue
				}
				for _, nid := range neighbors {
					if _, seen := visited[nid]; seen {
						continue
					}
					visited[nid] = struct{}{}
					next = append(next, nid)
					g.mu.RLock()
					ent, ok := g.entities[nid]
					g.mu.RUnlock()
					if !ok {
						ent = Entity{ID: nid}
					}
					out = append(out, RelatedEntity{Entity: ent, RelationshipType: rel, Distance: hop})
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return out, nil
}

// edgeTypesFor returns the relationship labels to probe from src.
// GraphDB.Neighbors requires a label and no index of written labels is
// kept, so the same fixed set is returned for every src.
func (g *Graph) edgeTypesFor(src string) []string {
	return []string{"RELATED_TO", "MENTIONED_IN", "WORKS_FOR", "LOCATED_IN"}
}

// Stats reports basic graph size, mirroring get_stats().
type Stats struct {
	TotalEntities int
}

func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{TotalEntities: len(g.entities)}
}

// NewEntityID derives a deterministic entity ID from type+name+document,
// matching the original's f"{etype}_{name}_{document_id[:8]}" scheme.
func NewEntityID(entityType, name, documentID string) string {
	doc := documentID
	if len(doc) > 8 {
		doc = doc[:8]
	}
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	return fmt.Sprintf("%s_%s_%s", strings.ToLower(entityType), slug, doc)
}
