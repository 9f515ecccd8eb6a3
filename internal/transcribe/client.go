// Package transcribe issues short-lived tokens for the AssemblyAI streaming
// transcription service. The upstream response is passed through verbatim.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/loqalabs/sleep-assistant/internal/config"
)

const maxTokenBody = 64 << 10

var (
	// ErrMissingAPIKey is returned when no AssemblyAI key is configured.
	ErrMissingAPIKey = errors.New("ASSEMBLYAI_API_KEY not set")
	// ErrUpstream wraps every transport, status or decoding failure.
	ErrUpstream = errors.New("assemblyai token request failed")
)

type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	expiresIn  int
	timeout    time.Duration
	logger     *slog.Logger
}

func NewClient(cfg config.TranscriptionConfig, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		expiresIn:  cfg.ExpiresInSeconds,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:     log.With(slog.String("component", "transcribe-client")),
	}
}

// Token requests a temporary streaming token and returns the upstream JSON body.
func (c *Client) Token(ctx context.Context) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %w", ErrUpstream, err)
	}
	q := u.Query()
	q.Set("expires_in_seconds", strconv.Itoa(c.expiresIn))
	u.RawQuery = q.Encode()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("assemblyai token request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(bytes.TrimSpace(body))))
		return nil, fmt.Errorf("%w: status %s", ErrUpstream, resp.Status)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrUpstream)
	}
	return json.RawMessage(body), nil
}
