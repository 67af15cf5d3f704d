package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/persistence/databases"
)

func TestAddEntityAccumulatesDocumentIDs(t *testing.T) {
	g := New(databases.NewMemoryGraph())
	ctx := context.Background()

	_, err := g.AddEntity(ctx, "person_acme_doc1", "Acme Corp", "ORGANIZATION", "doc1")
	require.NoError(t, err)
	ent, err := g.AddEntity(ctx, "person_acme_doc1", "Acme Corp", "ORGANIZATION", "doc2")
	require.NoError(t, err)
	require.Equal(t, []string{"doc1", "doc2"}, ent.DocumentIDs)
}

func TestFindEntitiesByNameIsCaseInsensitive(t *testing.T) {
	g := New(databases.NewMemoryGraph())
	ctx := context.Background()
	_, _ = g.AddEntity(ctx, "org_acme", "Acme Corp", "ORGANIZATION", "doc1")

	found := g.FindEntitiesByName("ACME CORP")
	require.Len(t, found, 1)
	require.Equal(t, "org_acme", found[0].ID)
}

func TestRelatedEntitiesTraversesHops(t *testing.T) {
	g := New(databases.NewMemoryGraph())
	ctx := context.Background()
	_, _ = g.AddEntity(ctx, "a", "A", "PERSON", "")
	_, _ = g.AddEntity(ctx, "b", "B", "PERSON", "")
	_, _ = g.AddEntity(ctx, "c", "C", "PERSON", "")
	require.NoError(t, g.AddRelationship(ctx, "a", "b", "RELATED_TO", 1.0, "doc1"))
	require.NoError(t, g.AddRelationship(ctx, "b", "c", "RELATED_TO", 1.0, "doc1"))

	related, err := g.RelatedEntities(ctx, "a", 2)
	require.NoError(t, err)
	ids := make(map[string]int)
	for _, r := range related {
		ids[r.Entity.ID] = r.Distance
	}
	require.Equal(t, 1, ids["b"])
	require.Equal(t, 2, ids["c"])
}

func TestNewEntityIDTruncatesDocumentPrefix(t *testing.T) {
	id := NewEntityID("ORGANIZATION", "Acme Corp", "0123456789abcdef")
	require.Equal(t, "organization_acme_corp_01234567", id)
}

func TestStatsCountsEntities(t *testing.T) {
	g := New(databases.NewMemoryGraph())
	ctx := context.Background()
	_, _ = g.AddEntity(ctx, "a", "A", "PERSON", "")
	_, _ = g.AddEntity(ctx, "b", "B", "PERSON", "")
	require.Equal(t, 2, g.Stats().TotalEntities)
}
