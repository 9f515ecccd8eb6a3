package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/sleep-assistant/internal/api"
	"github.com/loqalabs/sleep-assistant/internal/audiostore"
	"github.com/loqalabs/sleep-assistant/internal/bus"
	"github.com/loqalabs/sleep-assistant/internal/config"
	"github.com/loqalabs/sleep-assistant/internal/llm"
	"github.com/loqalabs/sleep-assistant/internal/natsserver"
	"github.com/loqalabs/sleep-assistant/internal/protocol"
	"github.com/loqalabs/sleep-assistant/internal/ratelimit"
	"github.com/loqalabs/sleep-assistant/internal/readiness"
	"github.com/loqalabs/sleep-assistant/internal/transcribe"
	"github.com/loqalabs/sleep-assistant/internal/tts"
)

const (
	shutdownTimeout = 10 * time.Second
	evictInterval   = time.Minute
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	flags  *readiness.Flags

	speech *tts.Service
	coach  *llm.Coach
	events *bus.Client
	swept  metric.Int64Counter
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		flags:  readiness.New(),
	}
}

// Readiness exposes the service flags.
func (r *Runtime) Readiness() readiness.Checker { return r.flags }

// Start runs the HTTP API, the metrics endpoint and the background tasks
// until ctx is cancelled, then shuts everything down gracefully.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if r.swept, err = otel.Meter("github.com/loqalabs/sleep-assistant/runtime").Int64Counter("sleep.audio.swept",
		metric.WithDescription("Audio files removed by the age sweep")); err != nil {
		r.logger.Warn("failed to create sweep counter", slog.String("error", err.Error()))
	}

	store, err := audiostore.Open(r.cfg.Audio.Dir, r.logger)
	if err != nil {
		return err
	}

	embedded, err := r.startBus(ctx)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()
	defer r.events.Close()

	r.buildClients(store)

	upstreamClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	limits := ratelimit.NewRegistry(r.cfg.RateLimit, r.logger)
	opts := api.Options{
		Readiness: r.flags,
		Tokens:    transcribe.NewClient(r.cfg.Transcription, upstreamClient, r.logger),
		Audio:     store,
		Limits:    limits,
		Logger:    r.logger,
	}
	if r.speech != nil {
		opts.Speech = r.speech
	}
	if r.coach != nil {
		opts.Coach = r.coach
	}
	if r.events != nil {
		opts.Events = r.events
	}

	addr := net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(r.cfg, opts).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	var metricsServer *http.Server
	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(httpServer) })
	if metricsServer != nil {
		g.Go(func() error { return serve(metricsServer) })
	}
	g.Go(func() error {
		r.initialize(gctx)
		return nil
	})
	g.Go(func() error {
		store.Run(gctx,
			time.Duration(r.cfg.Audio.SweepIntervalSeconds)*time.Second,
			time.Duration(r.cfg.Audio.MaxAgeSeconds)*time.Second,
			r.onSweep)
		return nil
	})
	g.Go(func() error {
		limits.Run(gctx, evictInterval, time.Duration(r.cfg.RateLimit.IdleEvictSeconds)*time.Second)
		return nil
	})

	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("audio_dir", store.Dir()))

	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}

// buildClients constructs the upstream clients. A client whose configuration
// is incomplete stays nil and its readiness flag is never set.
func (r *Runtime) buildClients(store *audiostore.Store) {
	synth, err := tts.NewSynthesizer(r.cfg.TTS)
	if err != nil {
		r.logger.Error("failed to initialize TTS service", slog.String("error", err.Error()))
	} else {
		r.speech = tts.NewService(r.cfg.TTS, synth, store, r.logger)
	}

	completer, err := llm.NewCompleter(r.cfg.Chat)
	if err != nil {
		r.logger.Error("failed to initialize OpenAI service", slog.String("error", err.Error()))
	} else {
		r.coach = llm.NewCoach(r.cfg.Chat, completer, r.logger)
	}
}

// initialize brings both services up concurrently. Failures are logged and
// leave the corresponding flag unset; nothing is retried.
func (r *Runtime) initialize(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		if r.speech == nil {
			return nil
		}
		if r.flags.MarkSpeechReady() {
			r.logger.Info("TTS service ready", slog.String("mode", r.cfg.TTS.Mode))
		}
		return nil
	})
	g.Go(func() error {
		if r.coach == nil {
			return nil
		}
		if r.cfg.Chat.InitProbe {
			probeCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Chat.InitProbeTimeoutSec)*time.Second)
			defer cancel()
			if err := r.coach.Probe(probeCtx); err != nil {
				r.logger.Error("OpenAI service failed to initialize", slog.String("error", err.Error()))
				return nil
			}
		}
		if r.flags.MarkChatReady() {
			r.logger.Info("OpenAI service ready", slog.String("model", r.coach.Model()))
		}
		return nil
	})
	_ = g.Wait()
}

func (r *Runtime) startBus(ctx context.Context) (*natsserver.EmbeddedServer, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return nil, err
	}
	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		r.logger.Warn("event bus unavailable, continuing without events", slog.String("error", err.Error()))
		return embedded, nil
	}
	r.events = client
	return embedded, nil
}

func (r *Runtime) onSweep(result audiostore.SweepResult) {
	if len(result.Removed) == 0 {
		return
	}
	if r.swept != nil {
		r.swept.Add(context.Background(), int64(len(result.Removed)))
	}
	r.logger.Info("audio sweep complete",
		slog.Int("scanned", result.Scanned),
		slog.Int("removed", len(result.Removed)),
		slog.Int("failed", result.Failed))

	now := time.Now().UTC()
	for _, id := range result.Removed {
		if err := r.events.Publish(protocol.SubjectAudioSwept, protocol.AudioEvent{
			AudioID:   id,
			Reason:    protocol.ReasonExpired,
			Timestamp: now,
		}); err != nil {
			r.logger.Warn("failed to publish sweep event", slog.String("error", err.Error()))
		}
	}
}
