package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key over a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Decision, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc extracts the rate limit key; defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Limiter defaults to an in-process MemoryLimiter.
	Limiter Limiter
}

// RateLimit rejects requests over cfg.Max per cfg.Window with 429. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. When the limiter fails the request is let through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r), cfg.Max, cfg.Window, now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the first X-Forwarded-For hop, X-Real-IP, or the
// remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MemoryLimiter approximates a sliding window from two fixed windows: the
// previous window's count is weighted by how much of it still overlaps.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*windowPair
}

type windowPair struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// NewMemoryLimiter returns an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*windowPair)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(window)
	wp, ok := l.windows[key]
	switch {
	case !ok:
		wp = &windowPair{currStart: start}
		l.windows[key] = wp
	case start.Sub(wp.currStart) >= 2*window:
		*wp = windowPair{currStart: start}
	case start.After(wp.currStart):
		wp.prevCount, wp.currCount, wp.currStart = wp.currCount, 0, start
	}

	overlap := 1 - float64(now.Sub(wp.currStart))/float64(window)
	effective := wp.prevCount*overlap + wp.currCount
	resetAt := wp.currStart.Add(window)

	if effective >= float64(limit) {
		return Decision{ResetAt: resetAt}, nil
	}
	wp.currCount++
	return Decision{
		Allowed:   true,
		Remaining: max(int(float64(limit)-effective-1), 0),
		ResetAt:   resetAt,
	}, nil
}

// Sweep forgets keys idle for two windows.
func (l *MemoryLimiter) Sweep(window time.Duration, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, wp := range l.windows {
		if now.Sub(wp.currStart) >= 2*window {
			delete(l.windows, key)
		}
	}
}

// RunSweeper calls Sweep every two windows until ctx is done.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, window time.Duration) {
	ticker := time.NewTicker(2 * window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(window, now)
		}
	}
}
