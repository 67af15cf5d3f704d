// Package zeus implements the Orchestrator (spec §4.11): a single fixed
// sequential workflow that routes a query to the clarification, general
// knowledge, comparison/analysis, summarization, or document-search path,
// or to the Document Pipeline when documents are attached.
//
// Grounded on original_source/backend/orchestration/orchestrator.py
// (WorkflowState shape, node wiring, _route_by_intent/_get_routing_path
// tables, _generate_response_node priority order). Reimplemented as a
// plain Go state machine per spec §9's redesign note that no dynamic-graph
// engine is needed for a fixed set of nodes and edges — the langgraph
// conditional-edge dispatch becomes a Go switch over classifier.Intent,
// in the idiom of the teacher's internal/agent/engine.go sequential
// tool-call loop.
package zeus

import (
	"context"
	"strings"
	"sync"
	"time"

	"vantage/internal/adaptive"
	"vantage/internal/apollo"
	"vantage/internal/classifier"
	"vantage/internal/odysseus"
	"vantage/internal/retrieve"
	"vantage/internal/specialists"
	"vantage/internal/stepbus"
)

// HistoryTurn is one previous conversation turn, used both for prompt
// construction and for document-attached routing (spec §4.11, §4.12).
type HistoryTurn struct {
	Role    string
	Content string
}

// SessionContext is the derived, TTL'd view of recent session activity
// (spec §3 "Session context"): topic, document types explored, and recent
// queries/intents. Grounded on original_source/backend/memory/session_memory.py's
// get_context, reimplemented without the Redis dependency it falls back
// from in-process (spec places distributed session storage out of scope,
// §1 "distributed operation").
type SessionContext struct {
	Topic         string
	DocumentTypes []string
	RecentQueries []string
	Intents       []string
}

// SessionBacker is the storage contract the orchestrator needs for
// session context (spec §3 "Session context ... ephemeral, TTL'd"): the
// in-process SessionStore below, or an optional distributed RedisSessionStore
// for multi-process deployments sharing one Redis instance.
type SessionBacker interface {
	AddTurn(sessionID, query, intent string, docTypes []string)
	Derive(sessionID string) SessionContext
}

type sessionTurn struct {
	query     string
	intent    string
	docTypes  []string
	timestamp time.Time
}

// SessionStore holds a sliding window of recent turns per session, with a
// TTL after which a session's window is dropped wholesale on next access.
// In-memory only: spec §1 scopes this system to single-node operation.
type SessionStore struct {
	mu         sync.Mutex
	windowSize int
	ttl        time.Duration
	sessions   map[string][]sessionTurn
	touched    map[string]time.Time
}

// NewSessionStore builds a store with the original's defaults (window of
// 10 turns, 1 hour TTL).
func NewSessionStore(windowSize int, ttl time.Duration) *SessionStore {
	if windowSize <= 0 {
		windowSize = 10
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{
		windowSize: windowSize,
		ttl:        ttl,
		sessions:   make(map[string][]sessionTurn),
		touched:    make(map[string]time.Time),
	}
}

// AddTurn records one turn, trimming to the window size.
func (s *SessionStore) AddTurn(sessionID, query, intent string, docTypes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(sessionID)
	turns := append(s.sessions[sessionID], sessionTurn{query: query, intent: intent, docTypes: docTypes, timestamp: time.Now()})
	if len(turns) > s.windowSize {
		turns = turns[len(turns)-s.windowSize:]
	}
	s.sessions[sessionID] = turns
	s.touched[sessionID] = time.Now()
}

func (s *SessionStore) expireLocked(sessionID string) {
	last, ok := s.touched[sessionID]
	if ok && time.Since(last) > s.ttl {
		delete(s.sessions, sessionID)
		delete(s.touched, sessionID)
	}
}

// Derive builds the current SessionContext for a session: topic guessed
// from the most frequent words across the last 5 queries, document types
// seen, and recent queries/intents — mirroring session_memory.py's
// get_context.
func (s *SessionStore) Derive(sessionID string) SessionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(sessionID)
	turns := s.sessions[sessionID]
	if len(turns) == 0 {
		return SessionContext{}
	}
	recent := turns
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	ctx := SessionContext{}
	wordCounts := make(map[string]int)
	docTypeSeen := make(map[string]struct{})
	for _, t := range recent {
		ctx.RecentQueries = append(ctx.RecentQueries, t.query)
		ctx.Intents = append(ctx.Intents, t.intent)
		for _, dt := range t.docTypes {
			if _, ok := docTypeSeen[dt]; !ok {
				docTypeSeen[dt] = struct{}{}
				ctx.DocumentTypes = append(ctx.DocumentTypes, dt)
			}
		}
		for _, w := range strings.Fields(strings.ToLower(t.query)) {
			if len(w) > 3 {
				wordCounts[w]++
			}
		}
	}
	ctx.Topic = topWords(wordCounts, 3)
	return ctx
}

func topWords(counts map[string]int, n int) string {
	type kv struct {
		word  string
		count int
	}
	var all []kv
	for w, c := range counts {
		all = append(all, kv{w, c})
	}
	// simple selection of the top-n by count, stable on insertion order ties
	var top []string
	for len(top) < n && len(all) > 0 {
		bestIdx := 0
		for i := 1; i < len(all); i++ {
			if all[i].count > all[bestIdx].count {
				bestIdx = i
			}
		}
		top = append(top, all[bestIdx].word)
		all = append(all[:bestIdx], all[bestIdx+1:]...)
	}
	return strings.Join(top, " ")
}

// UserPreferences carries the learned hybrid-retrieval weights for a user
// (SPEC_FULL §3 supplemented feature: "user preference learning via EMA of
// hybrid-alpha choices" — not present in the original, which only ever
// read a static optimal_weights dict).
type UserPreferences struct {
	UserID       string
	VectorWeight float64
	BM25Weight   float64
	samples      int
}

// PreferenceStore learns per-user hybrid weights via an exponential
// moving average over the vector/bm25 split of each retrieval's best
// attempt, nudging toward whichever side produced the higher-quality
// results.
type PreferenceStore struct {
	mu    sync.Mutex
	alpha float64
	prefs map[string]*UserPreferences
}

// NewPreferenceStore builds a store with EMA smoothing factor alpha
// (0 < alpha <= 1; higher reacts faster to recent signal).
func NewPreferenceStore(alpha float64) *PreferenceStore {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &PreferenceStore{alpha: alpha, prefs: make(map[string]*UserPreferences)}
}

// Get returns userID's current preferences, defaulting to the spec's
// baseline 0.7/0.3 split when nothing has been learned yet.
func (p *PreferenceStore) Get(userID string) UserPreferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.prefs[userID]; ok {
		return *pr
	}
	return UserPreferences{UserID: userID, VectorWeight: 0.7, BM25Weight: 0.3}
}

// Observe folds one quality-weighted outcome into userID's EMA. A
// qualityScore above the sisyphus threshold nudges weight toward
// vectorWeightUsed; below it, away from it.
func (p *PreferenceStore) Observe(userID string, vectorWeightUsed, qualityScore float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.prefs[userID]
	if !ok {
		pr = &UserPreferences{UserID: userID, VectorWeight: 0.7, BM25Weight: 0.3}
		p.prefs[userID] = pr
	}
	target := vectorWeightUsed
	if qualityScore < 0.6 {
		target = 1 - vectorWeightUsed
	}
	pr.VectorWeight = pr.VectorWeight + p.alpha*(target-pr.VectorWeight)
	if pr.VectorWeight < 0.1 {
		pr.VectorWeight = 0.1
	}
	if pr.VectorWeight > 0.9 {
		pr.VectorWeight = 0.9
	}
	pr.BM25Weight = 1 - pr.VectorWeight
	pr.samples++
}

// WorkflowState is the single shared record threaded through every node of
// the Search Pipeline (spec §3 "Workflow state").
type WorkflowState struct {
	UserID              string
	SessionID           string
	ConversationID      string
	Query               string
	ConversationHistory []HistoryTurn

	Intent     classifier.Intent
	Confidence float64
	Filters    map[string]any
	Entities   []string

	Results    []retrieve.Result
	SearchTime float64

	// RetrievalStrategy is Proteus's (internal/adaptive) pre-search
	// classification of how much weight keyword/vector/graph retrieval
	// should carry for this query (spec §4.10).
	RetrievalStrategy adaptive.Decision
	// GraphExpansion is Apollo's (internal/apollo) graph-based query
	// expansion, populated when entities were extracted and a knowledge
	// graph is configured (spec §4.10).
	GraphExpansion *apollo.Result
	// ReasoningPlan is Odysseus's (internal/odysseus) decomposition/
	// synthesis result for queries complex enough to need multi-step
	// retrieval (spec §4.10), populated only on the analysis route.
	ReasoningPlan *odysseus.SynthesizedAnswer

	ClarificationQuestions []string
	ComparisonResult       *specialists.Comparison
	Summary                string
	Explanations           []string
	Insights               []string

	QualityEvaluation *specialists.Evaluation
	ShouldReformulate bool

	ResponseMessage string
	Suggestions     []string

	SessionContext  SessionContext
	UserPreferences UserPreferences

	Error string
	Steps []stepbus.Event
}

// Response is process_query's return contract (spec §4.11, §6
// "/search/enhanced").
type Response struct {
	Status                 string
	ResponseMessage        string
	Results                []retrieve.Result
	Count                  int
	Intent                 string
	Confidence             float64
	AgentsUsed             []string
	Steps                  []stepbus.Event
	SearchTime             float64
	TotalTime              float64
	DocumentMode           bool
	RoutingPath            string
	Suggestions            []string
	ClarificationQuestions []string
	Error                  string
}

// InteractionRecorder is the Memory collaborator (spec §1: AgenticMemory
// and the episodic store are external collaborators, not implemented
// here). Nil is valid and simply skips recording.
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, userID, sessionID, query, response string, results []retrieve.Result, intent string, searchTime float64, metadata map[string]any) error
}

// AttachedDocument resolved document metadata handed to the Document
// Pipeline (spec §4.12). RawText is populated from the already-indexed
// record (spec §4.11: attached_documents are resolved through the
// Retrieval Adapter) rather than re-read from disk — ingestion has
// already extracted it once.
type AttachedDocument struct {
	ID       string
	Path     string
	Filename string
	RawText  string
}

// DocumentPipeline is the Document Pipeline collaborator (internal/daedalus).
type DocumentPipeline interface {
	ProcessQuery(ctx context.Context, query string, attached []AttachedDocument, history []HistoryTurn) (DocumentResponse, error)
}

// DocumentResponse mirrors internal/daedalus.Response, declared here to
// avoid zeus depending on daedalus's concrete type in its public API.
type DocumentResponse struct {
	Answer        string
	Sources       []retrieve.Result
	Confidence    float64
	AgentsUsed    []string
	ThinkingSteps []stepbus.Event
}
