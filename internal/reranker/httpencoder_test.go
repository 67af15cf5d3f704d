package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/config"
)

func TestHTTPCrossEncoder_Score(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req crossEncoderReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "xenc", req.Model)
		require.Len(t, req.Pairs, 1)
		require.Equal(t, [2]string{"q", "doc text"}, req.Pairs[0])
		_ = json.NewEncoder(w).Encode(crossEncoderResp{Scores: []float64{2.5}})
	}))
	defer ts.Close()

	enc := NewHTTPCrossEncoder(config.ModelsConfig{
		CrossEncoderName:    "xenc",
		CrossEncoderBaseURL: ts.URL,
		CrossEncoderPath:    "/predict",
	}, nil)

	score, err := enc.Score(context.Background(), "q", "doc text")
	require.NoError(t, err)
	require.Equal(t, 2.5, score)
}

func TestHTTPCrossEncoder_RequiresBaseURL(t *testing.T) {
	enc := NewHTTPCrossEncoder(config.ModelsConfig{}, nil)
	_, err := enc.Score(context.Background(), "q", "d")
	require.Error(t, err)
}

func TestHTTPCrossEncoder_EmptyScoresIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(crossEncoderResp{})
	}))
	defer ts.Close()

	enc := NewHTTPCrossEncoder(config.ModelsConfig{CrossEncoderBaseURL: ts.URL, CrossEncoderPath: "/predict"}, nil)
	_, err := enc.Score(context.Background(), "q", "d")
	require.Error(t, err)
}
