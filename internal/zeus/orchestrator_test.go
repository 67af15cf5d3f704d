package zeus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vantage/internal/classifier"
	"vantage/internal/retrieve"
)

func TestRouteByIntentForcesClarificationBelowConfidenceFloor(t *testing.T) {
	require.Equal(t, "clarification", routeByIntent(classifier.IntentDocumentSearch, 0.1))
}

func TestRouteByIntentMapsEachIntent(t *testing.T) {
	cases := map[classifier.Intent]string{
		classifier.IntentDocumentSearch:      "document_search",
		classifier.IntentGeneralKnowledge:    "general_knowledge",
		classifier.IntentSystemMeta:          "general_knowledge",
		classifier.IntentClarificationNeeded: "clarification",
		classifier.IntentComparison:          "analysis",
		classifier.IntentAnalysis:            "analysis",
		classifier.IntentSummarization:       "summarization",
	}
	for intent, want := range cases {
		require.Equal(t, want, routeByIntent(intent, 0.9), "intent=%s", intent)
	}
}

func TestRoutingPathKnownAndUnknown(t *testing.T) {
	require.Equal(t, "Zeus → Athena → Search → Hermes → Diogenes", routingPath(string(classifier.IntentDocumentSearch)))
	require.Equal(t, "Zeus → Athena → Default", routingPath("made_up_intent"))
}

func TestGenerateResponseNodePrioritizesClarification(t *testing.T) {
	o := &Orchestrator{}
	state := &WorkflowState{
		ClarificationQuestions: []string{"which document?"},
		Summary:                "should be ignored",
	}
	o.generateResponseNode(nil, state)
	require.Contains(t, state.ResponseMessage, "which document?")
}

func TestGenerateResponseNodeFallsBackToNoResultsApology(t *testing.T) {
	o := &Orchestrator{}
	state := &WorkflowState{Query: "nonexistent topic"}
	o.generateResponseNode(nil, state)
	require.Contains(t, state.ResponseMessage, "couldn't find any documents")
}

func TestGenerateResponseNodeReportsResultCount(t *testing.T) {
	o := &Orchestrator{}
	state := &WorkflowState{Results: []retrieve.Result{{ID: "a"}, {ID: "b"}}}
	o.generateResponseNode(nil, state)
	require.Contains(t, state.ResponseMessage, "2 relevant documents")
}

func TestSessionStoreDerivesRecentQueriesAndExpires(t *testing.T) {
	s := NewSessionStore(10, time.Millisecond)
	s.AddTurn("sess1", "find invoices", "document_search", []string{"invoice"})
	ctx := s.Derive("sess1")
	require.Equal(t, []string{"find invoices"}, ctx.RecentQueries)
	require.Equal(t, []string{"invoice"}, ctx.DocumentTypes)

	time.Sleep(5 * time.Millisecond)
	expired := s.Derive("sess1")
	require.Empty(t, expired.RecentQueries)
}

func TestPreferenceStoreDefaultsAndObserves(t *testing.T) {
	p := NewPreferenceStore(0.5)
	prefs := p.Get("u1")
	require.InDelta(t, 0.7, prefs.VectorWeight, 1e-9)

	p.Observe("u1", 0.9, 0.9)
	updated := p.Get("u1")
	require.Greater(t, updated.VectorWeight, prefs.VectorWeight)
	require.InDelta(t, 1.0, updated.VectorWeight+updated.BM25Weight, 1e-9)
}
