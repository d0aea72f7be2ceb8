package review_test

import (
	"context"

	"reviewloop.app/reviewd/common/llm"
)

type fakeClient struct {
	chatFn       func(ctx context.Context, req llm.Request) (*llm.Response, error)
	chatStreamFn func(ctx context.Context, req llm.Request, onDelta func(string)) (*llm.Response, error)
}

func (f *fakeClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if f.chatFn != nil {
		return f.chatFn(ctx, req)
	}
	return &llm.Response{}, nil
}

func (f *fakeClient) ChatStream(ctx context.Context, req llm.Request, onDelta func(string)) (*llm.Response, error) {
	if f.chatStreamFn != nil {
		return f.chatStreamFn(ctx, req, onDelta)
	}
	resp, err := f.Chat(ctx, req)
	if err == nil && onDelta != nil && resp.Content != "" {
		onDelta(resp.Content)
	}
	return resp, err
}

func (f *fakeClient) Model() string { return "fake-model" }
