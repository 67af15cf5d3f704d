package specialists

import (
	"context"
	"errors"
	"time"

	"vantage/internal/docrecord"
	"vantage/internal/llm"
	"vantage/internal/llmclient"
)

// fakeProvider returns a fixed response (or error) regardless of input,
// matching the teacher's testhelpers fake-provider idiom.
type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	if f.err != nil {
		return llm.Message{}, f.err
	}
	return llm.Message{Role: "assistant", Content: f.response}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("not implemented")
}

func newTestClient(response string, err error) *llmclient.Client {
	c := llmclient.New(&fakeProvider{response: response, err: err}, nil)
	return c
}

func newDoc(name, summary string, createdAt time.Time) docrecord.Record {
	return docrecord.Record{ID: name, Filename: name, DetailedSummary: summary, CreatedAt: createdAt}
}
