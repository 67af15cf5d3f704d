// Package feedback implements the per-user feedback store (spec §4.6):
// thumbs-up/down signals upserted per (user_id, normalized_query,
// doc_id), decayed linearly over time and folded into a per-document
// boost consumed by internal/reranker.
//
// Grounded on the teacher's internal/persistence/databases/postgres_search.go
// pgx bootstrap-table idiom (CREATE TABLE IF NOT EXISTS + ON CONFLICT
// upsert), generalized to this spec's decay/normalization algorithm.
package feedback

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vantage/internal/logging"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Store is the Postgres-backed feedback store described in spec §4.6.
type Store struct {
	pool  *pgxpool.Pool
	clock Clock
}

// New bootstraps the feedback table/index and returns a ready Store.
func New(pool *pgxpool.Pool) *Store {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS feedback (
  id BIGSERIAL PRIMARY KEY,
  user_id TEXT NOT NULL,
  query TEXT NOT NULL,
  document_id TEXT NOT NULL,
  feedback_score SMALLINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(user_id, query, document_id)
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS feedback_user_query_idx ON feedback (user_id, query)`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS feedback_user_doc_idx ON feedback (user_id, document_id)`)
	return &Store{pool: pool, clock: time.Now}
}

// WithClock overrides the store's time source; used in tests.
func (s *Store) WithClock(c Clock) *Store {
	s.clock = c
	return s
}

// NormalizeQuery lowercases and collapses whitespace so that feedback
// recorded under differently-cased or -spaced queries is still matched
// by get_boosts' "exact query" bonus.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// AddFeedback upserts (user_id, normalized_query, doc_id) -> ±1 per spec
// §3/§4.6: a repeat submission for the same triple (including a
// thumbs-up flipped to thumbs-down) replaces the prior row and refreshes
// its timestamp rather than accumulating a second row, matching the
// original's select-then-update-or-insert (feedback.py).
func (s *Store) AddFeedback(ctx context.Context, userID, query, docID string, isHelpful bool) error {
	score := -1
	if isHelpful {
		score = 1
	}
	norm := NormalizeQuery(query)
	_, err := s.pool.Exec(ctx, `
INSERT INTO feedback(user_id, query, document_id, feedback_score, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, query, document_id)
DO UPDATE SET feedback_score = EXCLUDED.feedback_score, created_at = EXCLUDED.created_at
`, userID, norm, docID, score, s.clock())
	if err != nil {
		logging.Log.WithError(err).WithField("user_id", userID).Warn("feedback: add_feedback failed")
	}
	return err
}

type row struct {
	query     string
	docID     string
	score     int
	createdAt time.Time
}

// GetBoosts implements spec §4.6's decayed accumulation: for each row in
// the window now-decay_days<=created_at, decay = max(0, 1 -
// age_days/decay_days), accumulated as score*decay into the doc's boost;
// an exact normalized-query match earns an extra 0.5*decay. If any
// |boost| exceeds 1 after summation, the whole map is divided by the max
// absolute value so every boost lands in [-1, 1].
func (s *Store) GetBoosts(ctx context.Context, userID, query string, docIDs []string, decayDays int) (map[string]float64, error) {
	if decayDays <= 0 {
		decayDays = 30
	}
	if len(docIDs) == 0 {
		return map[string]float64{}, nil
	}
	norm := NormalizeQuery(query)
	since := s.clock().Add(-time.Duration(decayDays) * 24 * time.Hour)

	rows, err := s.pool.Query(ctx, `
SELECT query, document_id, feedback_score, created_at
FROM feedback
WHERE user_id = $1 AND document_id = ANY($2) AND created_at >= $3
`, userID, docIDs, since)
	if err != nil {
		logging.Log.WithError(err).WithField("user_id", userID).Warn("feedback: get_boosts query failed")
		return map[string]float64{}, nil
	}
	defer rows.Close()

	var recs []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.query, &r.docID, &r.score, &r.createdAt); err != nil {
			return map[string]float64{}, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return map[string]float64{}, err
	}

	return accumulate(recs, norm, s.clock(), decayDays), nil
}

// accumulate is the pure decay/normalize computation, factored out so it
// can be exercised without a database.
func accumulate(recs []row, normQuery string, now time.Time, decayDays int) map[string]float64 {
	boosts := make(map[string]float64)
	for _, r := range recs {
		ageDays := now.Sub(r.createdAt).Hours() / 24
		decay := 1 - ageDays/float64(decayDays)
		if decay < 0 {
			decay = 0
		}
		contribution := float64(r.score) * decay
		if r.query == normQuery {
			contribution += 0.5 * decay
		}
		boosts[r.docID] += contribution
	}

	maxAbs := 0.0
	for _, v := range boosts {
		if v < 0 {
			v = -v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	if maxAbs > 1 {
		for id, v := range boosts {
			boosts[id] = v / maxAbs
		}
	}
	return boosts
}

// BoostMap adapts a precomputed get_boosts map to internal/reranker's
// single-document FeedbackSource interface: callers fetch the batch of
// boosts for a query's candidate set once, then pass a BoostMap into the
// reranker instead of hitting Postgres per-candidate.
type BoostMap map[string]float64

// Boost implements reranker.FeedbackSource.
func (m BoostMap) Boost(userID, query, docID string) float64 {
	return m[docID]
}

// CleanupOld drops feedback rows older than 90 days.
func (s *Store) CleanupOld(ctx context.Context) error {
	cutoff := s.clock().Add(-90 * 24 * time.Hour)
	_, err := s.pool.Exec(ctx, `DELETE FROM feedback WHERE created_at < $1`, cutoff)
	if err != nil {
		logging.Log.WithError(err).Warn("feedback: cleanup_old failed")
	}
	return err
}
