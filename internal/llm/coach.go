package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/sleep-assistant/internal/config"
)

const instrumentationName = "github.com/loqalabs/sleep-assistant/llm"

var (
	errEmptyContent = errors.New("chat completion returned no content")
	errNoChoices    = errors.New("chat completion returned no choices")
)

// Coach talks to the chat-completion upstream on behalf of the sleep coach
// persona. Chat and Routine always return text: upstream failures are
// logged and replaced by local fallbacks.
type Coach struct {
	cfg      config.ChatConfig
	client   Completer
	logger   *slog.Logger
	tracer   trace.Tracer
	failures metric.Int64Counter
	timeout  time.Duration
	pick     func(n int) int
}

func NewCoach(cfg config.ChatConfig, client Completer, log *slog.Logger) *Coach {
	c := &Coach{
		cfg:     cfg,
		client:  client,
		logger:  log.With(slog.String("component", "chat-coach")),
		tracer:  otel.Tracer(instrumentationName),
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		pick:    rand.IntN,
	}
	var err error
	if c.failures, err = otel.Meter(instrumentationName).Int64Counter("sleep.upstream.failures",
		metric.WithDescription("Failed upstream calls")); err != nil {
		c.logger.Warn("failed to create failure counter", slogError(err))
	}
	return c
}

// NewCompleter builds the upstream client selected by cfg.Mode. A BaseURL
// points the client at any OpenAI-compatible server.
func NewCompleter(cfg config.ChatConfig) (Completer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockCompleter(), nil
	case "openai", "":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable is required")
		}
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return openai.NewClientWithConfig(clientCfg), nil
	default:
		return nil, fmt.Errorf("unknown chat mode %q", cfg.Mode)
	}
}

// Model returns the configured upstream model name.
func (c *Coach) Model() string { return c.cfg.Model }

// Chat answers message in the context of the most recent history turns.
// The upstream call outlives a cancelled ctx and is bounded by the chat
// timeout alone.
func (c *Coach) Chat(ctx context.Context, message string, history []Turn) string {
	messages := c.chatMessages(message, history)
	c.logger.Info("sending chat request", slog.Int("messages", len(messages)))

	reply, err := c.complete(context.WithoutCancel(ctx), "llm.chat", messages, c.cfg.ChatMaxTokens)
	switch {
	case errors.Is(err, errEmptyContent):
		c.logger.Warn("chat upstream returned empty content")
		return EmptyReply
	case err != nil:
		c.recordFailure(ctx, "chat", err)
		return fallbackReplies[c.pick(len(fallbackReplies))]
	}
	c.logger.Info("received chat response", slog.Int("chars", len(reply)))
	return reply
}

// Routine produces a long-form relaxation script from free-text preferences.
func (c *Coach) Routine(ctx context.Context, preferences string) string {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: routinePrompt(preferences)},
	}
	routine, err := c.complete(context.WithoutCancel(ctx), "llm.routine", messages, c.cfg.RoutineMaxTokens)
	if err != nil {
		c.recordFailure(ctx, "routine", err)
		return FallbackRoutine
	}
	return routine
}

// Health issues a minimal completion and reports whether the upstream
// answered. Cancelling ctx aborts the call.
func (c *Coach) Health(ctx context.Context) Health {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: healthProbePrompt},
	}
	_, err := c.complete(ctx, "llm.health", messages, c.cfg.HealthMaxTokens)
	if err != nil && !errors.Is(err, errEmptyContent) {
		c.logger.Warn("chat health check failed", slogError(err))
		return Health{
			Status:        HealthStatusError,
			Model:         c.cfg.Model,
			APIAccessible: false,
			Message:       "OpenAI service error: " + err.Error(),
		}
	}
	return Health{
		Status:        HealthStatusHealthy,
		Model:         c.cfg.Model,
		APIAccessible: true,
		Message:       "OpenAI service is operational",
	}
}

// Probe reports an error when the upstream cannot be reached. It is used at
// startup when chat.init_probe is enabled.
func (c *Coach) Probe(ctx context.Context) error {
	h := c.Health(ctx)
	if !h.APIAccessible {
		return errors.New(h.Message)
	}
	return nil
}

func (c *Coach) chatMessages(message string, history []Turn) []openai.ChatCompletionMessage {
	if limit := c.cfg.MaxHistory; len(history) > limit {
		history = history[len(history)-limit:]
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: convertRole(turn.Role), Content: turn.Content})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
}

func (c *Coach) complete(ctx context.Context, op string, messages []openai.ChatCompletionMessage, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	callCtx, span := c.tracer.Start(callCtx, op, trace.WithAttributes(
		attribute.String("llm.model", c.cfg.Model),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:               c.cfg.Model,
		Messages:            messages,
		MaxCompletionTokens: maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyContent
	}
	return content, nil
}

func (c *Coach) recordFailure(ctx context.Context, op string, err error) {
	if c.failures != nil {
		c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("upstream", "chat"), attribute.String("op", op)))
	}
	c.logger.Error("chat upstream call failed", slog.String("op", op), slogError(err))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
