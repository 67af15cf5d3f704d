package httpapi

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"vantage/internal/convo"
	"vantage/internal/stepbus"
	"vantage/internal/validation"
	"vantage/internal/version"
	"vantage/internal/zeus"
)

var (
	errEmptyQuery          = errors.New("query must not be empty")
	errNoFlush             = errors.New("streaming not supported by response writer")
	errNoFeedbackStore     = errors.New("feedback store is not configured")
	errNoConversationStore = errors.New("conversation store is not configured")
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "healthy", "version": version.Version})
}

// searchRequest mirrors original_source/backend/api.py's SearchRequest.
type searchRequest struct {
	Query              string   `json:"query"`
	TopK               int      `json:"top_k"`
	UseHybrid          bool     `json:"use_hybrid"`
	SessionID          string   `json:"session_id"`
	UserID             string   `json:"user_id"`
	ConversationID     string   `json:"conversation_id"`
	AttachedDocuments  []string `json:"attached_documents"`
}

// handleEnhancedSearch implements spec §6's `/search/enhanced`: resolves
// or creates a session/user id, saves the user turn if a conversation
// store is wired, runs the Orchestrator, persists the assistant turn, and
// returns the enriched response shape the teacher's enhanced_search
// handler builds.
func (s *Server) handleEnhancedSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, errEmptyQuery)
		return
	}
	if _, err := validation.SessionID(req.SessionID); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := validation.ProjectID(req.ConversationID); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()[:16]
	}
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	conversationID := req.ConversationID
	var history []convo.Message
	if s.conversations != nil {
		uid := userIDToInt64(userID)
		if conversationID == "" {
			conv, err := s.conversations.CreateConversation(r.Context(), uid, req.Query)
			if err == nil {
				conversationID = conv.ID
			}
		}
		if conversationID != "" {
			if msgs, err := s.conversations.ListMessages(r.Context(), uid, conversationID, 12); err == nil {
				history = msgs
			}
			_, _ = s.conversations.AppendMessage(r.Context(), uid, convo.Message{
				ConversationID: conversationID,
				Role:           convo.RoleUser,
				Content:        req.Query,
				Query:          req.Query,
			})
		}
	}

	zeusHistory := make([]zeus.HistoryTurn, 0, len(history))
	for _, m := range history {
		if m.Content == "" || m.Content == req.Query {
			continue
		}
		zeusHistory = append(zeusHistory, zeus.HistoryTurn{Role: string(m.Role), Content: m.Content})
	}

	resp := s.orchestrator.ProcessQuery(r.Context(), userID, sessionID, req.Query, conversationID, req.AttachedDocuments, zeusHistory)

	if s.conversations != nil && conversationID != "" {
		resultsJSON, _ := json.Marshal(resp.Results)
		stepsJSON, _ := json.Marshal(resp.Steps)
		_, _ = s.conversations.AppendMessage(r.Context(), userIDToInt64(userID), convo.Message{
			ConversationID: conversationID,
			Role:           convo.RoleAssistant,
			Content:        resp.ResponseMessage,
			Query:          req.Query,
			Results:        resultsJSON,
			ThinkingSteps:  stepsJSON,
		})
	}

	if s.bus != nil {
		s.bus.Emit(sessionID, stepbus.Event{Type: stepbus.EventComplete})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":                  resp.Status,
		"response_message":        resp.ResponseMessage,
		"results":                 resp.Results,
		"count":                   resp.Count,
		"intent":                  resp.Intent,
		"confidence":              resp.Confidence,
		"agents_used":             resp.AgentsUsed,
		"steps":                   resp.Steps,
		"search_time":             resp.SearchTime,
		"total_time":              resp.TotalTime,
		"session_id":              sessionID,
		"user_id":                 userID,
		"conversation_id":         conversationID,
		"routing_path":            resp.RoutingPath,
		"suggestions":             resp.Suggestions,
		"clarification_questions": resp.ClarificationQuestions,
		"document_mode":           resp.DocumentMode,
		"error":                   resp.Error,
	})
}

// handleStreamSteps implements spec §6's SSE endpoint: flushes each Step
// Bus event for session_id as `data: {...}\n\n`, terminated by a
// `{type: complete}` event, grounded on original_source/backend/api.py's
// stream_search_steps/event_generator.
func (s *Server) handleStreamSteps(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if _, err := validation.SessionID(sessionID); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, errNoFlush)
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if s.bus == nil {
		return
	}
	s.bus.Stream(sessionID, s.streamTimeout, r.Context().Done(), func(ev stepbus.Event) bool {
		b, err := json.Marshal(ev)
		if err != nil {
			return true
		}
		if _, err := w.Write([]byte("data: " + string(b) + "\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	})
}

// feedbackRequest mirrors original_source/backend/api.py's FeedbackRequest.
type feedbackRequest struct {
	UserID     string `json:"user_id"`
	Query      string `json:"query"`
	DocumentID string `json:"document_id"`
	IsHelpful  bool   `json:"is_helpful"`
}

// handleSubmitFeedback implements spec §6's `/feedback`.
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		respondError(w, http.StatusServiceUnavailable, errNoFeedbackStore)
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.feedback.AddFeedback(r.Context(), req.UserID, req.Query, req.DocumentID, req.IsHelpful); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	feedbackType := "not helpful"
	if req.IsHelpful {
		feedbackType = "helpful"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       "Thanks for your feedback! Marked as " + feedbackType + ".",
		"feedback_type": feedbackType,
	})
}

type createConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	conv, err := s.conversations.CreateConversation(r.Context(), userIDToInt64(req.UserID), req.Title)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "conversation_id": conv.ID})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	userID := r.URL.Query().Get("user_id")
	convs, err := s.conversations.ListConversations(r.Context(), userIDToInt64(userID))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	userID := r.URL.Query().Get("user_id")
	conv, err := s.conversations.GetConversation(r.Context(), userIDToInt64(userID), r.PathValue("conversationID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "conversation": conv})
}

type updateConversationRequest struct {
	Title    *string `json:"title"`
	IsPinned *bool   `json:"is_pinned"`
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	var req updateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := r.URL.Query().Get("user_id")
	id := r.PathValue("conversationID")
	if req.Title != nil {
		if err := s.conversations.RenameConversation(r.Context(), userIDToInt64(userID), id, *req.Title); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if req.IsPinned != nil {
		if err := s.conversations.SetPinned(r.Context(), userIDToInt64(userID), id, *req.IsPinned); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if err := s.conversations.DeleteConversation(r.Context(), userIDToInt64(userID), r.PathValue("conversationID")); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	userID := r.URL.Query().Get("user_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	msgs, err := s.conversations.ListMessages(r.Context(), userIDToInt64(userID), r.PathValue("conversationID"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "messages": msgs})
}

type attachDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

func (s *Server) handleAttachDocuments(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	var req attachDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := r.URL.Query().Get("user_id")
	id := r.PathValue("conversationID")
	for _, docID := range req.DocumentIDs {
		if err := s.conversations.AttachDocument(r.Context(), userIDToInt64(userID), id, docID); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		respondError(w, http.StatusServiceUnavailable, errNoConversationStore)
		return
	}
	userID := r.URL.Query().Get("user_id")
	attachments, err := s.conversations.ListAttachments(r.Context(), userIDToInt64(userID), r.PathValue("conversationID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	ids := make([]string, len(attachments))
	for i, a := range attachments {
		ids[i] = a.DocumentID
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "document_ids": ids})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"status": "error", "error": err.Error()})
}

// userIDToInt64 maps the string user ids used throughout the
// search-and-answer control plane onto the Conversation Store's BIGINT
// user_id column via a stable hash, so both layers can use whatever
// identifier a caller supplies (including the teacher's "anonymous"
// default) without requiring a separate numeric user registry.
func userIDToInt64(userID string) int64 {
	if userID == "" {
		userID = "anonymous"
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return int64(h.Sum64() >> 1) // keep positive; Postgres BIGINT is signed
}
