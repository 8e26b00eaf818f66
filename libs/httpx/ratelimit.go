package httpx

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Quota is the state of one client's fixed window after taking a request from it.
type Quota struct {
	Limit     int
	Remaining int
	ResetIn   time.Duration
	Allowed   bool
}

// Limiter takes one request from the window identified by key.
type Limiter interface {
	Take(ctx context.Context, key string) (Quota, error)
}

type RateLimitOptions struct {
	Logger *slog.Logger
	// FailOpen lets requests through when the limiter itself errors.
	FailOpen bool
	// Key picks the window for a request. Defaults to ClientIP.
	Key func(*http.Request) string
}

// RateLimit rejects requests over quota with 429 and reports the quota in X-RateLimit-* headers.
func RateLimit(l Limiter, opts RateLimitOptions) Middleware {
	if opts.Key == nil {
		opts.Key = ClientIP
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, err := l.Take(r.Context(), opts.Key(r))
			if err != nil {
				opts.Logger.Warn("rate limiter error", "path", r.URL.Path, "err", err)
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
			if !q.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(q.ResetIn.Seconds()))))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-Ip, then the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// MemoryLimiter keeps fixed windows in process memory. It serves single-replica deployments
// that run without Redis.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*memWindow
	nextSweep time.Time
}

type memWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{limit: limit, window: window, now: time.Now, windows: map[string]*memWindow{}}
}

func (m *MemoryLimiter) Take(_ context.Context, key string) (Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.After(m.nextSweep) {
		for k, w := range m.windows {
			if !now.Before(w.resetAt) {
				delete(m.windows, k)
			}
		}
		m.nextSweep = now.Add(m.window)
	}

	w := m.windows[key]
	if w == nil || !now.Before(w.resetAt) {
		w = &memWindow{resetAt: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++
	return quota(m.limit, w.count, w.resetAt.Sub(now)), nil
}

func quota[N int | int64](limit int, count N, resetIn time.Duration) Quota {
	n := int(count)
	return Quota{
		Limit:     limit,
		Remaining: max(limit-n, 0),
		ResetIn:   resetIn,
		Allowed:   n <= limit,
	}
}
