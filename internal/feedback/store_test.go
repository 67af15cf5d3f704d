package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeQueryLowercasesAndCollapsesSpace(t *testing.T) {
	require.Equal(t, "quarterly report", NormalizeQuery("  Quarterly   Report "))
}

func TestAccumulateDecaysLinearlyOverWindow(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	recs := []row{
		{query: "quarterly report", docID: "docX", score: 1, createdAt: now.Add(-15 * 24 * time.Hour)},
	}
	boosts := accumulate(recs, "quarterly report", now, 30)
	// age 15d of 30d window: decay = 0.5; exact-match bonus = 0.5*0.5 = 0.25
	// contribution = 1*0.5 + 0.25 = 0.75
	require.InDelta(t, 0.75, boosts["docX"], 1e-9)
}

func TestAccumulateExcludesExpiredRecordsViaNonNegativeDecayFloor(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	recs := []row{
		{query: "q", docID: "docX", score: 1, createdAt: now.Add(-40 * 24 * time.Hour)},
	}
	boosts := accumulate(recs, "q", now, 30)
	require.Equal(t, 0.0, boosts["docX"])
}

func TestAccumulateNormalizesWhenOverflowing(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	recs := []row{
		{query: "q", docID: "docX", score: 1, createdAt: now},
		{query: "q", docID: "docX", score: 1, createdAt: now},
		{query: "q", docID: "docY", score: -1, createdAt: now},
	}
	boosts := accumulate(recs, "q", now, 30)
	// docX raw = 1.5+1.5=3, docY raw = -1.5; max abs = 3 -> normalize by 3
	require.InDelta(t, 1.0, boosts["docX"], 1e-9)
	require.InDelta(t, -0.5, boosts["docY"], 1e-9)
}

func TestAccumulateDifferentUserQueryGetsNoExactMatchBonus(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	recs := []row{
		{query: "other query", docID: "docX", score: 1, createdAt: now},
	}
	boosts := accumulate(recs, "quarterly report", now, 30)
	require.InDelta(t, 1.0, boosts["docX"], 1e-9)
}
