// Package llmclient is the single entry point for model calls used by every
// agent in the search-and-answer control plane (§4.2). It wraps the
// teacher's multi-provider internal/llm.Provider implementations with
// retry/backoff, JSON sanitization, and "thinking" capture so that callers
// never see a raw provider error: they get either a parsed value or the
// caller-supplied fallback.
package llmclient

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"vantage/internal/llm"
	"vantage/internal/logging"
	"vantage/internal/modelmanager"
)

// ErrLLMCall is returned when every retry is exhausted and no fallback was
// supplied.
var ErrLLMCall = errors.New("llmclient: call failed after retries")

// Client is the retry/backoff/sanitization wrapper around an llm.Provider.
type Client struct {
	Provider llm.Provider
	Manager  *modelmanager.Manager
}

// New constructs a Client around a provider. manager may be nil, in which
// case model-loaded tracking is skipped (useful in tests).
func New(provider llm.Provider, manager *modelmanager.Manager) *Client {
	return &Client{Provider: provider, Manager: manager}
}

// CallOptions configures a single logical LLM call.
type CallOptions struct {
	Model string
	// Prompt is sent as a single user message; callers needing multi-turn
	// history should use the Messages field instead.
	Prompt      string
	Messages    []llm.Message
	Timeout     time.Duration
	Temperature float64
	Images      []llm.GeneratedImage
	// JSON triggers extraction of the first balanced {...} block from the
	// raw response. No response-format option is sent to the provider.
	JSON bool
	// VisionIncompatibleJSON marks a vision model that cannot take a JSON
	// response format. Since no format option is ever sent, it does not
	// change the request; JSON extraction still applies.
	VisionIncompatibleJSON bool
	// Think is not forwarded to the provider. Result.Thinking is filled
	// from a <thinking> block in the response whether or not Think is set.
	Think bool
	// Fallback is returned, as text, when every retry is exhausted.
	Fallback string
	// Validator rejects an otherwise-successful response, forcing a retry.
	Validator func(string) bool
	MaxRetries int
}

// Result carries the text response plus any captured "thinking" content.
type Result struct {
	Text     string
	Thinking string
	// UsedFallback is true when retries were exhausted and Fallback was returned.
	UsedFallback bool
}

// Call performs a free-text or structured-JSON completion per §4.2.
//
// Retries on timeout/HTTP-error/empty-response/validator-fail with bounded
// linear backoff (attempt * 0.5-1.0s jittered). When retries are exhausted:
// if a fallback was supplied, it is returned with UsedFallback=true; else
// ErrLLMCall is returned.
func (c *Client) Call(ctx context.Context, opt CallOptions) (Result, error) {
	if opt.MaxRetries <= 0 {
		opt.MaxRetries = 3
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 120 * time.Second
	}
	if c.Manager != nil && opt.Model != "" {
		c.Manager.EnsureLoaded(ctx, opt.Model, "text")
	}

	msgs := opt.Messages
	if len(msgs) == 0 && strings.TrimSpace(opt.Prompt) != "" {
		msgs = []llm.Message{{Role: "user", Content: opt.Prompt}}
	}

	var lastErr error
	for attempt := 1; attempt <= opt.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, opt.Timeout)
		msg, err := c.Provider.Chat(callCtx, msgs, nil, opt.Model)
		cancel()

		if err != nil {
			lastErr = err
			logging.Log.WithError(err).WithField("attempt", attempt).Warn("llmclient: call failed, retrying")
			c.backoff(attempt)
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			lastErr = errors.New("llmclient: empty response")
			c.backoff(attempt)
			continue
		}

		useJSON := opt.JSON && !opt.VisionIncompatibleJSON
		out := text
		if opt.JSON {
			out = ExtractJSONBlock(text)
			if out == "" {
				lastErr = errors.New("llmclient: no JSON object found in response")
				c.backoff(attempt)
				continue
			}
		}
		_ = useJSON

		if opt.Validator != nil && !opt.Validator(out) {
			lastErr = errors.New("llmclient: validator rejected response")
			c.backoff(attempt)
			continue
		}

		return Result{Text: out, Thinking: extractThinking(msg.Content)}, nil
	}

	if opt.Fallback != "" {
		return Result{Text: opt.Fallback, UsedFallback: true}, nil
	}
	if lastErr != nil {
		return Result{}, errFromCause(lastErr)
	}
	return Result{}, ErrLLMCall
}

func errFromCause(cause error) error {
	return errors.Join(ErrLLMCall, cause)
}

// backoff sleeps attempt * (0.5-1.0s), jittered, matching spec §4.2's
// "bounded linear backoff (attempt x 0.5-1.0s)".
func (c *Client) backoff(attempt int) {
	base := time.Duration(attempt) * 500 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base)))
	time.Sleep(base + jitter)
}

// ExtractJSONBlock strips markdown code fences and returns the first
// balanced {...} block found in s, or "" if none is found.
func ExtractJSONBlock(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// extractThinking pulls a "thinking"/<thinking> block out of a raw
// response if the model emitted one, per §4.2 "Captures the thinking
// field if the model emits one".
func extractThinking(s string) string {
	const openTag, closeTag = "<thinking>", "</thinking>"
	start := strings.Index(s, openTag)
	if start < 0 {
		return ""
	}
	end := strings.Index(s[start:], closeTag)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(s[start+len(openTag) : start+end])
}
