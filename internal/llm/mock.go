package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

type mockCompleter struct{}

// NewMockCompleter answers every request locally without network access.
func NewMockCompleter() Completer { return &mockCompleter{} }

func (m *mockCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	select {
	case <-ctx.Done():
		return openai.ChatCompletionResponse{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	var last string
	if n := len(req.Messages); n > 0 {
		last = strings.TrimSpace(req.Messages[n-1].Content)
	}
	if runes := []rune(last); len(runes) > 80 {
		last = string(runes[:80])
	}
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: "[mock completion for " + last + "]",
			},
			FinishReason: openai.FinishReasonStop,
		}},
	}, nil
}
