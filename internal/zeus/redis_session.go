package zeus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vantage/internal/config"
)

// RedisSessionStore is a distributed alternative to SessionStore: the
// sliding window of recent turns lives in Redis instead of process memory,
// so session context survives a restart and is shared across orchestrator
// replicas terminating at the same Redis instance. Grounded on the
// teacher's internal/skills/redis_cache.go (UniversalClient construction,
// nil-receiver no-op methods, best-effort logging on miss).
//
// Window trimming uses Redis list LPUSH+LTRIM so the server enforces the
// window size; TTL is refreshed on every write, matching SessionStore's
// touch-resets-expiry semantics.
type RedisSessionStore struct {
	client     redis.UniversalClient
	windowSize int
	ttl        time.Duration
}

type redisSessionTurn struct {
	Query     string    `json:"query"`
	Intent    string    `json:"intent"`
	DocTypes  []string  `json:"doc_types"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRedisSessionStore dials cfg.Addr and verifies connectivity.
// windowSize/ttl default the same as NewSessionStore when non-positive.
// Returns nil, nil when cfg.Enabled is false — callers fall back to the
// in-process SessionStore.
func NewRedisSessionStore(cfg config.RedisConfig, windowSize int, ttl time.Duration) (*RedisSessionStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis session store: addr must not be empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis session store ping: %w", err)
	}
	if windowSize <= 0 {
		windowSize = 10
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSessionStore{client: client, windowSize: windowSize, ttl: ttl}, nil
}

func (r *RedisSessionStore) key(sessionID string) string {
	return "vantage:session:" + sessionID
}

// AddTurn records one turn, pushing onto the session's Redis list and
// trimming it to the configured window, then refreshing the TTL.
func (r *RedisSessionStore) AddTurn(sessionID, query, intent string, docTypes []string) {
	if r == nil || r.client == nil {
		return
	}
	payload, err := json.Marshal(redisSessionTurn{Query: query, Intent: intent, DocTypes: docTypes, Timestamp: time.Now()})
	if err != nil {
		return
	}
	ctx := context.Background()
	key := r.key(sessionID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(r.windowSize-1))
	pipe.Expire(ctx, key, r.ttl)
	_, _ = pipe.Exec(ctx)
}

// Derive mirrors SessionStore.Derive's topic/doc-types/recent-queries
// computation, reading the last 5 (oldest-first) turns from Redis.
func (r *RedisSessionStore) Derive(sessionID string) SessionContext {
	if r == nil || r.client == nil {
		return SessionContext{}
	}
	ctx := context.Background()
	raw, err := r.client.LRange(ctx, r.key(sessionID), 0, 4).Result()
	if err != nil || len(raw) == 0 {
		return SessionContext{}
	}
	turns := make([]redisSessionTurn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var t redisSessionTurn
		if err := json.Unmarshal([]byte(raw[i]), &t); err == nil {
			turns = append(turns, t)
		}
	}

	sctx := SessionContext{}
	wordCounts := make(map[string]int)
	docTypeSeen := make(map[string]struct{})
	for _, t := range turns {
		sctx.RecentQueries = append(sctx.RecentQueries, t.Query)
		sctx.Intents = append(sctx.Intents, t.Intent)
		for _, dt := range t.DocTypes {
			if _, ok := docTypeSeen[dt]; !ok {
				docTypeSeen[dt] = struct{}{}
				sctx.DocumentTypes = append(sctx.DocumentTypes, dt)
			}
		}
		for _, w := range strings.Fields(strings.ToLower(t.Query)) {
			if len(w) > 3 {
				wordCounts[w]++
			}
		}
	}
	sctx.Topic = topWords(wordCounts, 3)
	return sctx
}

// Close closes the underlying Redis client.
func (r *RedisSessionStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
