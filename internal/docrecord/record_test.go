package docrecord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEntitiesUnionDedupesAcrossCategories(t *testing.T) {
	union := EntitiesUnion(map[EntityCategory][]string{
		EntityPersons:   {"Alice", "Bob"},
		EntityCompanies: {"Acme Corp", "Alice"},
	})
	require.ElementsMatch(t, []string{"Alice", "Bob", "Acme Corp"}, union)
}

func TestValidRejectsEmptyID(t *testing.T) {
	r := Record{DetailedSummary: "a summary"}
	require.ErrorIs(t, r.Valid(8), errEmptyID)
}

func TestValidRejectsEmptySummary(t *testing.T) {
	r := Record{ID: "abc123"}
	require.ErrorIs(t, r.Valid(8), errEmptySummary)
}

func TestValidRejectsDimensionMismatchOnlyWhenEmbeddingOK(t *testing.T) {
	r := Record{
		ID:              "abc123",
		DetailedSummary: "a summary",
		EmbeddingOK:     true,
		VectorEmbedding: []float32{0.1, 0.2},
	}
	require.ErrorIs(t, r.Valid(8), errDimMismatch)

	r.EmbeddingOK = false
	require.NoError(t, r.Valid(8))
}

func TestValidAcceptsWellFormedRecord(t *testing.T) {
	r := Record{
		ID:              "abc123",
		DetailedSummary: "a summary",
		EmbeddingOK:     true,
		VectorEmbedding: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
		CreatedAt:       time.Now(),
	}
	require.NoError(t, r.Valid(8))
}
