package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/sleep-assistant/internal/audiostore"
	"github.com/loqalabs/sleep-assistant/internal/config"
)

func newTestRuntime(t *testing.T, mutate func(*config.Config)) (*Runtime, *audiostore.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.Audio.Dir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := audiostore.Open(cfg.Audio.Dir, log)
	require.NoError(t, err)
	return New(cfg, log), store
}

func TestInitializeMarksConfiguredServicesReady(t *testing.T) {
	rt, store := newTestRuntime(t, func(cfg *config.Config) {
		cfg.TTS.Mode = "mock"
		cfg.Chat.Mode = "mock"
		cfg.Chat.InitProbe = true
	})
	rt.buildClients(store)
	rt.initialize(context.Background())

	assert.True(t, rt.Readiness().SpeechReady())
	assert.True(t, rt.Readiness().ChatReady())
}

func TestMissingKeysLeaveFlagsUnset(t *testing.T) {
	rt, store := newTestRuntime(t, nil)
	rt.buildClients(store)
	rt.initialize(context.Background())

	assert.Nil(t, rt.speech)
	assert.Nil(t, rt.coach)
	assert.False(t, rt.Readiness().SpeechReady())
	assert.False(t, rt.Readiness().ChatReady())
}

func TestFailedProbeLeavesChatUnready(t *testing.T) {
	rt, store := newTestRuntime(t, func(cfg *config.Config) {
		cfg.TTS.Mode = "mock"
		cfg.Chat.APIKey = "sk-test"
		cfg.Chat.BaseURL = "http://127.0.0.1:1/v1"
		cfg.Chat.InitProbe = true
		cfg.Chat.InitProbeTimeoutSec = 1
		cfg.Chat.TimeoutSeconds = 1
	})
	rt.buildClients(store)
	rt.initialize(context.Background())

	assert.True(t, rt.Readiness().SpeechReady())
	assert.False(t, rt.Readiness().ChatReady())
}

func TestStartBusDisabled(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	embedded, err := rt.startBus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, embedded)
	assert.Nil(t, rt.events)
}

func TestStartBusEmbedded(t *testing.T) {
	rt, _ := newTestRuntime(t, func(cfg *config.Config) {
		cfg.Bus.Enabled = true
		cfg.Bus.Embedded = true
		cfg.Bus.Port = -1
	})
	embedded, err := rt.startBus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, embedded)
	defer embedded.Shutdown()
	defer rt.events.Close()

	assert.True(t, rt.events.Healthy())
	rt.onSweep(audiostore.SweepResult{Scanned: 1, Removed: []string{"3f1c0a4e-8f43-4c59-9c1e-2f7f4f1f9b10"}})
}

func TestOnSweepWithoutBus(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	rt.onSweep(audiostore.SweepResult{Scanned: 2, Removed: []string{"a", "b"}})
	rt.onSweep(audiostore.SweepResult{})
}
