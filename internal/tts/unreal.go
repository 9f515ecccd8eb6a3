package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 2048
)

type unrealSynth struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

type unrealRequest struct {
	Text    string  `json:"Text"`
	VoiceID string  `json:"VoiceId"`
	Bitrate string  `json:"Bitrate"`
	Pitch   float64 `json:"Pitch"`
	Speed   float64 `json:"Speed"`
}

// NewUnrealSynth returns a Synthesizer backed by the Unreal Speech stream endpoint.
func NewUnrealSynth(endpoint, apiKey string, timeout time.Duration) (Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("unreal speech api key is required")
	}
	if endpoint == "" {
		return nil, errors.New("unreal speech endpoint is required")
	}
	return &unrealSynth{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}, nil
}

func (u *unrealSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	body, err := json.Marshal(unrealRequest{
		Text:    req.Text,
		VoiceID: req.Voice,
		Bitrate: req.Bitrate,
		Pitch:   1.0,
		Speed:   0.0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAuthorization, "Bearer "+u.apiKey)

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to unreal speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("unreal speech returned status %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(audio) == 0 {
		return nil, errEmptyAudio
	}
	return audio, nil
}
