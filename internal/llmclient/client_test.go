package llmclient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/llm"
	"vantage/internal/llmclient"
	"vantage/internal/testhelpers"
)

func TestCallReturnsProviderText(t *testing.T) {
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Role: "assistant", Content: "the answer"}}
	client := llmclient.New(provider, nil)

	res, err := client.Call(context.Background(), llmclient.CallOptions{Model: "m", Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, "the answer", res.Text)
	require.False(t, res.UsedFallback)
}

func TestCallFallsBackAfterRetriesExhausted(t *testing.T) {
	provider := &testhelpers.FakeProvider{Err: errors.New("boom")}
	client := llmclient.New(provider, nil)

	res, err := client.Call(context.Background(), llmclient.CallOptions{
		Model:      "m",
		Prompt:     "q",
		MaxRetries: 1,
		Fallback:   "default answer",
	})
	require.NoError(t, err)
	require.True(t, res.UsedFallback)
	require.Equal(t, "default answer", res.Text)
}

func TestCallReturnsErrLLMCallWithoutFallback(t *testing.T) {
	provider := &testhelpers.FakeProvider{Err: errors.New("boom")}
	client := llmclient.New(provider, nil)

	_, err := client.Call(context.Background(), llmclient.CallOptions{Model: "m", Prompt: "q", MaxRetries: 1})
	require.ErrorIs(t, err, llmclient.ErrLLMCall)
}

func TestCallExtractsJSONBlock(t *testing.T) {
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Role: "assistant", Content: "```json\n{\"a\":1}\n```"}}
	client := llmclient.New(provider, nil)

	res, err := client.Call(context.Background(), llmclient.CallOptions{Model: "m", Prompt: "q", JSON: true})
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, res.Text)
}
