// Package llmtest provides a scripted chat model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrStreamUnsupported is returned by Model.Stream.
var ErrStreamUnsupported = errors.New("llmtest: stream not supported")

// Reply is one scripted completion.
type Reply struct {
	Content      string
	FinishReason string
	Err          error
}

// Model is a deterministic eino chat model. Respond, when set, decides every
// reply; otherwise Replies are handed out in order and the last one repeats.
type Model struct {
	mu      sync.Mutex
	Respond func(input []*schema.Message) Reply
	Replies []Reply
	calls   [][]*schema.Message
}

var _ model.BaseChatModel = (*Model)(nil)

func (m *Model) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, input)
	m.mu.Unlock()

	var r Reply
	switch {
	case m.Respond != nil:
		r = m.Respond(input)
	case len(m.Replies) > 0:
		if idx >= len(m.Replies) {
			idx = len(m.Replies) - 1
		}
		r = m.Replies[idx]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	finish := r.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: r.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: finish,
			Usage:        &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}, nil
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrStreamUnsupported
}

// Calls returns the messages of every Generate call so far.
func (m *Model) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Generate ran.
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// UserText returns the user message content of a request.
func UserText(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content
		}
	}
	return ""
}

// SystemText returns the system message content of a request.
func SystemText(input []*schema.Message) string {
	for _, m := range input {
		if m != nil && m.Role == schema.System {
			return m.Content
		}
	}
	return ""
}
