// Package api exposes the public HTTP surface of the sleep assistant.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/loqalabs/sleep-assistant/internal/config"
	"github.com/loqalabs/sleep-assistant/internal/ratelimit"
	"github.com/loqalabs/sleep-assistant/internal/readiness"
)

const (
	instrumentationName = "github.com/loqalabs/sleep-assistant/api"
	maxBodyBytes        = 1 << 20
)

// Options wires the collaborators of Server. Speech and Coach may be nil
// while their readiness flag is false.
type Options struct {
	Readiness readiness.Checker
	Speech    Speech
	Coach     Coach
	Tokens    TokenIssuer
	Audio     AudioFiles
	Events    Publisher
	Limits    *ratelimit.Registry
	Logger    *slog.Logger

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

type Server struct {
	cfg        config.Config
	ready      readiness.Checker
	speech     Speech
	coach      Coach
	tokens     TokenIssuer
	audio      AudioFiles
	events     Publisher
	limits     *ratelimit.Registry
	logger     *slog.Logger
	tracing    trace.TracerProvider
	rejections metric.Int64Counter

	// rejectLog throttles rate-limit log lines while a caller keeps retrying.
	rejectLog rate.Sometimes
}

func NewServer(cfg config.Config, opts Options) *Server {
	s := &Server{
		cfg:       cfg,
		ready:     opts.Readiness,
		speech:    opts.Speech,
		coach:     opts.Coach,
		tokens:    opts.Tokens,
		audio:     opts.Audio,
		events:    opts.Events,
		limits:    opts.Limits,
		logger:    opts.Logger.With(slog.String("component", "http-api")),
		tracing:   opts.TracerProvider,
		rejectLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	var err error
	if s.rejections, err = otel.Meter(instrumentationName).Int64Counter("sleep.ratelimit.rejections",
		metric.WithDescription("Requests rejected by the per-caller rate limiter")); err != nil {
		s.logger.Warn("failed to create rejection counter", slogError(err))
	}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /health", s.handleHealth)
	s.route(mux, "POST /api/tts", s.limited(ratelimit.RouteTTS, s.handleTTS))
	s.route(mux, "GET /api/audio/{id}", s.handleGetAudio)
	s.route(mux, "DELETE /api/audio/{id}", s.handleDeleteAudio)
	s.route(mux, "POST /api/chat", s.limited(ratelimit.RouteChat, s.handleChat))
	s.route(mux, "POST /api/sleep-routine", s.limited(ratelimit.RouteRoutine, s.handleRoutine))
	s.route(mux, "GET /api/openai/health", s.handleChatHealth)
	s.route(mux, "POST /api/breathing-session", s.handleBreathingSession)
	s.route(mux, "GET /api/breathing-sessions", s.handleBreathingSessions)
	s.route(mux, "GET /api/assemblyai/token", s.limited(ratelimit.RouteToken, s.handleTranscriptionToken))

	opts := []otelhttp.Option{
		// The route is unknown until the mux matches; route renames the span.
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method }),
	}
	if s.tracing != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.tracing))
	}
	return otelhttp.NewHandler(withCORS(s.cfg.HTTP.CORSOrigin, mux), "sleep-api", opts...)
}

// route registers h under pattern and names the request span after the
// pattern so span names stay bounded.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		trace.SpanFromContext(r.Context()).SetName(r.Pattern)
		h(w, r)
	})
}

// limited rejects callers that exceeded the route budget before the body is read.
func (s *Server) limited(route string, next http.HandlerFunc) http.HandlerFunc {
	limiter := s.limits.For(route)
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.limits.ClientKey(r)
		ok, retryAfter := limiter.Allow(key)
		if ok {
			next(w, r)
			return
		}
		if s.rejections != nil {
			s.rejections.Add(r.Context(), 1, metric.WithAttributes(attribute.String("route", route)))
		}
		s.rejectLog.Do(func() {
			s.logger.Info("rate limit exceeded", slog.String("route", route), slog.String("client", key))
		})
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, RateLimitResponse{
			Error: fmt.Sprintf("Rate limit exceeded: %d per 1 minute", limiter.PerMinute()),
		})
	}
}

func (s *Server) publish(subject string, v any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, v); err != nil {
		s.logger.Warn("failed to publish event", slog.String("subject", subject), slogError(err))
	}
}

// decodeJSON reads a JSON body into dst. Any failure is answered with 422.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		detail := "invalid request body: " + err.Error()
		if errors.Is(err, io.EOF) {
			detail = "request body is required"
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: detail})
		return false
	}
	if dec.More() {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: "invalid request body: trailing data"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

func unprocessable(w http.ResponseWriter, missing []string) {
	writeError(w, http.StatusUnprocessableEntity, "missing required field(s): "+strings.Join(missing, ", "))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
