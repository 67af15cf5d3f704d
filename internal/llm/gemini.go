package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	cfg "vantage/internal/config"
)

// GeminiProxyRequest defines the payload expected for the Gemini proxy endpoint.
type GeminiProxyRequest struct {
	Model    string          `json:"model"`
	Contents json.RawMessage `json:"contents"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleGemini proxies streaming vision/unified-model requests straight
// through to the Google Gemini API. Used when the configured unified
// model (spec §6 ollama.unified_model) is backed by Gemini rather than
// a local runtime, bypassing the buffered google/genai SDK client so
// raw server-sent chunks reach the caller immediately.
func HandleGemini(w http.ResponseWriter, r *http.Request, config *cfg.Config) {
	var req GeminiProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" || len(req.Contents) == 0 {
		writeJSONError(w, http.StatusBadRequest, "model and contents required")
		return
	}

	body, err := json.Marshal(map[string]json.RawMessage{
		"contents": req.Contents,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to marshal request")
		return
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent?key=%s", req.Model, config.GoogleGeminiKey)
	httpReq, err := http.NewRequestWithContext(r.Context(), "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create request")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to send request to gemini api: "+err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("gemini api returned an error: %d %s", resp.StatusCode, string(bodyBytes)))
		return
	}

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	buf := make([]byte, 1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}
