package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/stepbus"
)

func newTestServer() *Server {
	return NewServer(nil, stepbus.New(16), nil, nil, nil)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}

func TestSubmitFeedbackWithoutStoreReturnsServiceUnavailable(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`{"user_id":"u1","query":"q","document_id":"d1","is_helpful":true}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListConversationsWithoutStoreReturnsServiceUnavailable(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/conversations?user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGeminiProxyWithoutConfigReturnsServiceUnavailable(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/llm/gemini/stream", strings.NewReader(`{"model":"gemini-pro","contents":[]}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnhancedSearchRejectsEmptyQuery(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/search/enhanced", strings.NewReader(`{"query":""}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamStepsSetsSSEHeaders(t *testing.T) {
	srv := newTestServer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/search/enhanced/stream/sess1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}
