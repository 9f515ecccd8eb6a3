package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/loqalabs/sleep-assistant/internal/audiostore"
	"github.com/loqalabs/sleep-assistant/internal/config"
)

const instrumentationName = "github.com/loqalabs/sleep-assistant/tts"

// AudioURLPrefix is the public path under which artifacts are served.
const AudioURLPrefix = "/api/audio/"

// ArtifactStore persists synthesized audio.
type ArtifactStore interface {
	Save(data []byte) (audiostore.Artifact, error)
}

// Result describes a stored synthesis.
type Result struct {
	AudioID        string
	AudioURL       string
	Voice          string
	SpokenChars    int
	GenerationTime time.Duration
	// Duration stays nil: the length is unknown without decoding the MP3.
	Duration *float64
}

// Service turns text into a stored audio artifact.
type Service struct {
	cfg       config.TTSConfig
	synth     Synthesizer
	store     ArtifactStore
	slots     *semaphore.Weighted
	logger    *slog.Logger
	tracer    trace.Tracer
	latency   metric.Float64Histogram
	failures  metric.Int64Counter
	timeout   time.Duration
	maxSpoken int
}

func NewService(cfg config.TTSConfig, synth Synthesizer, store ArtifactStore, log *slog.Logger) *Service {
	s := &Service{
		cfg:       cfg,
		synth:     synth,
		store:     store,
		slots:     semaphore.NewWeighted(int64(max(cfg.MaxConcurrent, 1))),
		logger:    log.With(slog.String("component", "tts-service")),
		tracer:    otel.Tracer(instrumentationName),
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxSpoken: cfg.MaxSpokenChars,
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if s.latency, err = meter.Float64Histogram("sleep.tts.generation_seconds",
		metric.WithDescription("Upstream speech synthesis latency"), metric.WithUnit("s")); err != nil {
		s.logger.Warn("failed to create latency histogram", slogError(err))
	}
	if s.failures, err = meter.Int64Counter("sleep.upstream.failures",
		metric.WithDescription("Failed upstream calls")); err != nil {
		s.logger.Warn("failed to create failure counter", slogError(err))
	}
	return s
}

// NewSynthesizer builds the backend selected by cfg.Mode.
func NewSynthesizer(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(), nil
	case "exec":
		return NewExecSynth(cfg.Command)
	case "unreal", "":
		return NewUnrealSynth(cfg.Endpoint, cfg.APIKey, time.Duration(cfg.TimeoutSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

// Synthesize speaks the first MaxSpokenChars characters of text with voice.
// The upstream call is detached from ctx cancellation and bounded by the
// configured timeout; no retry is attempted.
func (s *Service) Synthesize(ctx context.Context, text, voice string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	voiceID := ResolveVoice(voice, s.cfg.DefaultVoice)
	spoken := truncateRunes(text, s.maxSpoken)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	callCtx, span := s.tracer.Start(callCtx, "tts.synthesize", trace.WithAttributes(
		attribute.String("tts.voice", voiceID),
		attribute.Int("tts.chars", len([]rune(spoken))),
	))
	defer span.End()

	if err := s.slots.Acquire(callCtx, 1); err != nil {
		return nil, s.fail(callCtx, span, fmt.Errorf("waiting for synthesis slot: %w", err))
	}
	defer s.slots.Release(1)

	start := time.Now()
	audio, err := s.synth.Synthesize(callCtx, SynthRequest{Text: spoken, Voice: voiceID, Bitrate: s.cfg.Bitrate})
	elapsed := time.Since(start)
	if err != nil {
		return nil, s.fail(callCtx, span, err)
	}
	if s.latency != nil {
		s.latency.Record(callCtx, elapsed.Seconds(), metric.WithAttributes(attribute.String("tts.mode", s.cfg.Mode)))
	}

	artifact, err := s.store.Save(audio)
	if err != nil {
		return nil, s.fail(callCtx, span, err)
	}

	s.logger.Info("speech generated",
		slog.String("audio_id", artifact.ID),
		slog.String("voice", voiceID),
		slog.Int("bytes", len(audio)),
		slog.Duration("generation_time", elapsed))

	return &Result{
		AudioID:        artifact.ID,
		AudioURL:       AudioURLPrefix + artifact.ID,
		Voice:          voiceID,
		SpokenChars:    len([]rune(spoken)),
		GenerationTime: elapsed,
	}, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.failures != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("upstream", "tts")))
	}
	s.logger.Warn("speech generation failed", slogError(err))
	return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
