// Package httpapi exposes the four external endpoints spec §6 names
// (`/search/enhanced`, `/search/enhanced/stream/{session_id}`, `/feedback`,
// `/conversations` and its sub-resources), grounded on
// original_source/backend/api.py's FastAPI route table, reimplemented
// over the teacher's stdlib http.ServeMux idiom (internal/httpapi's
// original playground routes used the same pattern, preserved here).
package httpapi

import (
	"net/http"
	"time"

	cfg "vantage/internal/config"
	"vantage/internal/convo"
	"vantage/internal/feedback"
	"vantage/internal/llm"
	"vantage/internal/stepbus"
	"vantage/internal/zeus"
)

// Server wires the Orchestrator (Zeus), Step Bus, Feedback Store, and
// Conversation Store to the HTTP surface.
type Server struct {
	orchestrator *zeus.Orchestrator
	bus          *stepbus.Bus
	feedback     *feedback.Store
	conversations *convo.Store
	config        *cfg.Config
	streamTimeout time.Duration
	mux          *http.ServeMux
}

// NewServer builds the HTTP API server. feedbackStore and conversations
// may be nil (spec §7: downstream absence degrades to a no-op/503
// respectively, the search itself still completes). config may be nil;
// when nil the Gemini passthrough route responds 503 instead of panicking.
func NewServer(orchestrator *zeus.Orchestrator, bus *stepbus.Bus, feedbackStore *feedback.Store, conversations *convo.Store, config *cfg.Config) *Server {
	s := &Server{
		orchestrator:  orchestrator,
		bus:           bus,
		feedback:      feedbackStore,
		conversations: conversations,
		config:        config,
		streamTimeout: 300 * time.Second,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux = http.NewServeMux()

	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /search/enhanced", s.handleEnhancedSearch)
	s.mux.HandleFunc("GET /search/enhanced/stream/{session_id}", s.handleStreamSteps)

	s.mux.HandleFunc("POST /feedback", s.handleSubmitFeedback)

	s.mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /conversations", s.handleListConversations)
	s.mux.HandleFunc("GET /conversations/{conversationID}", s.handleGetConversation)
	s.mux.HandleFunc("PUT /conversations/{conversationID}", s.handleUpdateConversation)
	s.mux.HandleFunc("DELETE /conversations/{conversationID}", s.handleDeleteConversation)
	s.mux.HandleFunc("GET /conversations/{conversationID}/messages", s.handleListMessages)
	s.mux.HandleFunc("POST /conversations/{conversationID}/documents", s.handleAttachDocuments)
	s.mux.HandleFunc("GET /conversations/{conversationID}/documents", s.handleListAttachments)

	s.mux.HandleFunc("POST /llm/gemini/stream", s.handleGeminiProxy)
}

// handleGeminiProxy passes vision/unified-model requests straight through
// to the Google Gemini API when the runtime is configured to use it
// (spec §6 ollama.unified_model as an external LLM-runtime collaborator).
func (s *Server) handleGeminiProxy(w http.ResponseWriter, r *http.Request) {
	if s.config == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gemini runtime not configured"})
		return
	}
	llm.HandleGemini(w, r, s.config)
}
