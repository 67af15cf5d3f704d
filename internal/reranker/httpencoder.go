package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vantage/internal/config"
)

// HTTPCrossEncoder calls an external cross-encoder model's HTTP endpoint
// (spec §6 "Cross-encoder: predict([[q,d_i]]) -> float[]", an out-of-scope
// collaborator). Grounded on internal/embedding's EmbedText request/response
// idiom, adapted to a single (query, document) pair per call.
type HTTPCrossEncoder struct {
	BaseURL string
	Path    string
	Model   string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPCrossEncoder builds an HTTPCrossEncoder from config.ModelsConfig.
func NewHTTPCrossEncoder(models config.ModelsConfig, client *http.Client) *HTTPCrossEncoder {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCrossEncoder{
		BaseURL: models.CrossEncoderBaseURL,
		Path:    models.CrossEncoderPath,
		Model:   models.CrossEncoderName,
		Client:  client,
		Timeout: 10 * time.Second,
	}
}

type crossEncoderReq struct {
	Model string     `json:"model"`
	Pairs [][2]string `json:"pairs"`
}

type crossEncoderResp struct {
	Scores []float64 `json:"scores"`
}

// Score implements CrossEncoder by POSTing a single-pair request.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query, document string) (float64, error) {
	if e.BaseURL == "" {
		return 0, fmt.Errorf("reranker: cross-encoder base_url not configured")
	}
	body, err := json.Marshal(crossEncoderReq{Model: e.Model, Pairs: [][2]string{{query, document}}})
	if err != nil {
		return 0, err
	}
	timeout := e.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, e.BaseURL+e.Path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("cross-encoder error: %s: %s", resp.Status, string(b))
	}
	var out crossEncoderResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("cross-encoder: decode response: %w", err)
	}
	if len(out.Scores) == 0 {
		return 0, fmt.Errorf("cross-encoder: empty scores")
	}
	return out.Scores[0], nil
}
