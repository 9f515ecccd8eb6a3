package transcribe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/sleep-assistant/internal/config"
)

func newTestClient(endpoint, key string) *Client {
	cfg := config.Default().Transcription
	cfg.Endpoint = endpoint
	cfg.APIKey = key
	return NewClient(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTokenPassesUpstreamBodyThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "aai-key", r.Header.Get("Authorization"))
		assert.Equal(t, "600", r.URL.Query().Get("expires_in_seconds"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token":"tmp-abc","expires_in_seconds":600}`)
	}))
	defer server.Close()

	body, err := newTestClient(server.URL+"/v3/token", "aai-key").Token(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"tmp-abc","expires_in_seconds":600}`, string(body))
}

func TestTokenMissingKey(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1", "").Token(context.Background())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestTokenUpstreamFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		},
		"invalid json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "<html>gateway</html>")
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			_, err := newTestClient(server.URL, "aai-key").Token(context.Background())
			assert.ErrorIs(t, err, ErrUpstream)
		})
	}
}

func TestTokenTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient(url, "aai-key").Token(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}
