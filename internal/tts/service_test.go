package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/sleep-assistant/internal/audiostore"
	"github.com/loqalabs/sleep-assistant/internal/config"
)

type recordingSynth struct {
	mu       sync.Mutex
	requests []SynthRequest
	err      error
	audio    []byte
	delay    time.Duration
}

func (r *recordingSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.delay):
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.audio != nil {
		return r.audio, nil
	}
	return []byte("mp3"), nil
}

func (r *recordingSynth) calls() []SynthRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SynthRequest(nil), r.requests...)
}

type failingStore struct{}

func (failingStore) Save([]byte) (audiostore.Artifact, error) {
	return audiostore.Artifact{}, errors.New("disk full")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.TTSConfig {
	return config.Default().TTS
}

func newTestService(t *testing.T, synth Synthesizer) (*Service, *audiostore.Store) {
	t.Helper()
	store, err := audiostore.Open(t.TempDir(), newLogger())
	require.NoError(t, err)
	return NewService(testConfig(), synth, store, newLogger()), store
}

func TestSynthesizeStoresArtifact(t *testing.T) {
	synth := &recordingSynth{audio: []byte("ID3-audio")}
	svc, store := newTestService(t, synth)

	result, err := svc.Synthesize(context.Background(), "Breathe in slowly.", "Luna")
	require.NoError(t, err)
	assert.Equal(t, "/api/audio/"+result.AudioID, result.AudioURL)
	assert.Equal(t, "Luna", result.Voice)
	assert.Nil(t, result.Duration)

	path, err := store.Resolve(result.AudioID)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestSynthesizeRejectsBlankTextWithoutUpstream(t *testing.T) {
	synth := &recordingSynth{}
	svc, _ := newTestService(t, synth)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Synthesize(context.Background(), text, "")
		assert.ErrorIs(t, err, ErrEmptyText)
	}
	assert.Empty(t, synth.calls())
}

func TestSynthesizeTruncatesSpokenText(t *testing.T) {
	synth := &recordingSynth{}
	svc, _ := newTestService(t, synth)

	text := strings.Repeat("é", 4000)
	result, err := svc.Synthesize(context.Background(), text, "")
	require.NoError(t, err)
	assert.Equal(t, 1000, result.SpokenChars)

	calls := synth.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1000, len([]rune(calls[0].Text)))
	assert.Equal(t, "192k", calls[0].Bitrate)
}

func TestUnknownVoiceMatchesDefault(t *testing.T) {
	synth := &recordingSynth{}
	svc, _ := newTestService(t, synth)

	for _, voice := range []string{"", "luna", "Robot9000", "  "} {
		_, err := svc.Synthesize(context.Background(), "hello", voice)
		require.NoError(t, err)
	}
	_, err := svc.Synthesize(context.Background(), "hello", " Luna ")
	require.NoError(t, err)

	calls := synth.calls()
	require.Len(t, calls, 5)
	for _, call := range calls[:4] {
		assert.Equal(t, DefaultVoice, call.Voice)
	}
	assert.Equal(t, "Luna", calls[4].Voice)
}

func TestSynthesizeUpstreamFailure(t *testing.T) {
	synth := &recordingSynth{err: errors.New("connection reset")}
	svc, store := newTestService(t, synth)

	_, err := svc.Synthesize(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrSynthesisFailed)

	result, err := store.Sweep(0)
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
}

func TestSynthesizeStoreFailure(t *testing.T) {
	svc := NewService(testConfig(), &recordingSynth{}, failingStore{}, newLogger())
	_, err := svc.Synthesize(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestSynthesizeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TimeoutSeconds = 1
	store, err := audiostore.Open(t.TempDir(), newLogger())
	require.NoError(t, err)
	svc := NewService(cfg, &recordingSynth{delay: 5 * time.Second}, store, newLogger())

	start := time.Now()
	_, err = svc.Synthesize(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCallerCancellationDoesNotAbortSynthesis(t *testing.T) {
	synth := &recordingSynth{delay: 50 * time.Millisecond}
	svc, _ := newTestService(t, synth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := svc.Synthesize(ctx, "hello", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AudioID)
}

func TestNewSynthesizerModes(t *testing.T) {
	cfg := testConfig()

	cfg.Mode = "mock"
	synth, err := NewSynthesizer(cfg)
	require.NoError(t, err)
	audio, err := synth.Synthesize(context.Background(), SynthRequest{Text: "hi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(audio), "ID3"))

	cfg.Mode = "unreal"
	cfg.APIKey = ""
	_, err = NewSynthesizer(cfg)
	require.Error(t, err)

	cfg.Mode = "carrier-pigeon"
	_, err = NewSynthesizer(cfg)
	require.Error(t, err)
}

func TestExecSynthPipesRequest(t *testing.T) {
	synth, err := NewExecSynth("cat")
	require.NoError(t, err)

	audio, err := synth.Synthesize(context.Background(), SynthRequest{Text: "good night", Voice: "Emily"})
	require.NoError(t, err)
	assert.Contains(t, string(audio), `"text":"good night"`)
	assert.Contains(t, string(audio), `"format":"mp3"`)
}

func TestExecSynthRejectsEmptyCommand(t *testing.T) {
	_, err := NewExecSynth("   ")
	require.Error(t, err)
}
