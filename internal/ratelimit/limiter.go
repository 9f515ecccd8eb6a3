// Package ratelimit enforces per-caller request budgets for individual routes.
// A caller may make at most N requests within any rolling minute.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/sleep-assistant/internal/config"
)

// Route names used as limiter keys.
const (
	RouteTTS     = "tts"
	RouteChat    = "chat"
	RouteRoutine = "sleep-routine"
	RouteToken   = "assemblyai-token"
)

// Window is the span over which a route budget applies.
const Window = time.Minute

type visitor struct {
	// admitted holds the times of accepted requests, oldest first.
	admitted []time.Time
	lastSeen time.Time
}

// Limiter keeps a log of admitted requests per caller key. A nil Limiter
// allows everything.
type Limiter struct {
	perMinute int
	clock     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func New(perMinute int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		clock:     time.Now,
		visitors:  make(map[string]*visitor),
	}
}

// PerMinute returns the configured budget.
func (l *Limiter) PerMinute() int {
	if l == nil {
		return 0
	}
	return l.perMinute
}

// Allow consumes one request for key. When the budget is exhausted it
// returns false and how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{admitted: make([]time.Time, 0, l.perMinute)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	v.prune(now)

	if len(v.admitted) >= l.perMinute {
		return false, v.admitted[0].Add(Window).Sub(now)
	}
	v.admitted = append(v.admitted, now)
	return true, 0
}

// prune drops admissions that fell out of the window ending at now.
func (v *visitor) prune(now time.Time) {
	drop := 0
	for drop < len(v.admitted) && now.Sub(v.admitted[drop]) >= Window {
		drop++
	}
	if drop > 0 {
		v.admitted = append(v.admitted[:0], v.admitted[drop:]...)
	}
}

// Evict drops callers idle for longer than idle and returns how many were removed.
func (l *Limiter) Evict(idle time.Duration) int {
	if l == nil {
		return 0
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Registry holds the limiter for every rate-limited route.
type Registry struct {
	limiters map[string]*Limiter
	trustXFF bool
	logger   *slog.Logger
}

// NewRegistry builds limiters from cfg. When limiting is disabled every
// lookup returns nil, which allows all requests.
func NewRegistry(cfg config.RateLimitConfig, log *slog.Logger) *Registry {
	r := &Registry{
		limiters: make(map[string]*Limiter),
		trustXFF: cfg.TrustForwardedFor,
		logger:   log.With(slog.String("component", "rate-limit")),
	}
	if !cfg.Enabled {
		return r
	}
	r.limiters[RouteTTS] = New(cfg.TTSPerMinute)
	r.limiters[RouteChat] = New(cfg.ChatPerMinute)
	r.limiters[RouteRoutine] = New(cfg.RoutinePerMinute)
	r.limiters[RouteToken] = New(cfg.TokenPerMinute)
	return r
}

// For returns the limiter of route, or nil when the route is unlimited.
func (r *Registry) For(route string) *Limiter {
	if r == nil {
		return nil
	}
	return r.limiters[route]
}

// ClientKey identifies the caller of req.
func (r *Registry) ClientKey(req *http.Request) string {
	return ClientKey(req, r != nil && r.trustXFF)
}

// Evict runs Evict on every route limiter.
func (r *Registry) Evict(idle time.Duration) int {
	total := 0
	for _, l := range r.limiters {
		total += l.Evict(idle)
	}
	return total
}

// Run evicts idle callers on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	if len(r.limiters) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 {
				r.logger.Debug("evicted idle callers", slog.Int("count", n))
			}
		}
	}
}

// ClientKey returns the remote host of req. With trustForwarded set, the
// first X-Forwarded-For entry wins.
func ClientKey(req *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
