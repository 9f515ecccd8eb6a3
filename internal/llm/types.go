package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Turn is one prior message supplied by the caller. The server keeps no
// conversation state; every request carries its own history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the subset of the OpenAI client used by Coach.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Health reports the outcome of an upstream probe.
type Health struct {
	Status        string `json:"status"`
	Model         string `json:"model,omitempty"`
	APIAccessible bool   `json:"api_accessible"`
	Message       string `json:"message"`
}

const (
	HealthStatusHealthy = "healthy"
	HealthStatusError   = "error"
)

func convertRole(role string) string {
	switch role {
	case openai.ChatMessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	case openai.ChatMessageRoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
