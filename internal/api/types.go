package api

import (
	"context"
	"encoding/json"

	"github.com/loqalabs/sleep-assistant/internal/llm"
	"github.com/loqalabs/sleep-assistant/internal/tts"
)

// Speech produces stored audio from text.
type Speech interface {
	Synthesize(ctx context.Context, text, voice string) (*tts.Result, error)
}

// Coach answers chat turns and builds sleep routines. Implementations never
// fail: upstream errors are replaced by fallback text.
type Coach interface {
	Chat(ctx context.Context, message string, history []llm.Turn) string
	Routine(ctx context.Context, preferences string) string
	Health(ctx context.Context) llm.Health
}

// TokenIssuer returns short-lived streaming transcription tokens.
type TokenIssuer interface {
	Token(ctx context.Context) (json.RawMessage, error)
}

// AudioFiles resolves and removes stored artifacts.
type AudioFiles interface {
	Resolve(id string) (string, error)
	Delete(id string) error
}

// Publisher broadcasts events. Failures never affect the HTTP response.
type Publisher interface {
	Publish(subject string, v any) error
}

type HealthResponse struct {
	Status            string `json:"status"`
	TTSInitialized    bool   `json:"tts_initialized"`
	OpenAIInitialized bool   `json:"openai_initialized"`
	Message           string `json:"message"`
}

type TTSRequest struct {
	Text        *string `json:"text"`
	SpeakerName string  `json:"speaker_name"`
}

type TTSResponse struct {
	Success        bool     `json:"success"`
	AudioID        string   `json:"audio_id,omitempty"`
	AudioURL       string   `json:"audio_url,omitempty"`
	Duration       *float64 `json:"duration"`
	GenerationTime *float64 `json:"generation_time,omitempty"`
	RealTimeFactor *float64 `json:"real_time_factor"`
	Error          string   `json:"error,omitempty"`
}

type AudioDeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ChatRequest struct {
	Message             *string    `json:"message"`
	ConversationHistory []llm.Turn `json:"conversation_history"`
}

type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RoutineRequest struct {
	Preferences *string `json:"preferences"`
}

type RoutineResponse struct {
	Success bool   `json:"success"`
	Routine string `json:"routine,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ChatHealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type BreathingSessionRequest struct {
	TechniqueID          *string  `json:"technique_id"`
	TechniqueName        *string  `json:"technique_name"`
	CyclesCompleted      *int     `json:"cycles_completed"`
	TotalDurationSeconds *float64 `json:"total_duration_seconds"`
	SessionDate          *string  `json:"session_date"`
}

func (r BreathingSessionRequest) missing() []string {
	var fields []string
	if r.TechniqueID == nil {
		fields = append(fields, "technique_id")
	}
	if r.TechniqueName == nil {
		fields = append(fields, "technique_name")
	}
	if r.CyclesCompleted == nil {
		fields = append(fields, "cycles_completed")
	}
	if r.TotalDurationSeconds == nil {
		fields = append(fields, "total_duration_seconds")
	}
	if r.SessionDate == nil {
		fields = append(fields, "session_date")
	}
	return fields
}

type BreathingSessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BreathingSessionsResponse struct {
	Success       bool  `json:"success"`
	Sessions      []any `json:"sessions"`
	TotalSessions int   `json:"total_sessions"`
}

// ErrorResponse carries a human readable failure reason.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RateLimitResponse is returned with HTTP 429.
type RateLimitResponse struct {
	Error string `json:"error"`
}
