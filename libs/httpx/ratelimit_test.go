package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func slotsRequest(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	req.RemoteAddr = remote
	return req
}

func TestMemoryLimiterBlocksAfterLimit(t *testing.T) {
	lim := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return now }
	h := Chain(okHandler(), RateLimit(lim, RateLimitOptions{}))

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, slotsRequest("10.0.0.1:5555"))
		if rr.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rr.Code)
		}
		if i == 2 && rr.Header().Get("Retry-After") != "60" {
			t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, slotsRequest("10.0.0.2:5555"))
	if rr.Code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", rr.Code)
	}

	now = now.Add(time.Minute)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, slotsRequest("10.0.0.1:5555"))
	if rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("expected a fresh window, got %d remaining=%q", rr.Code, rr.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected peer address, got %q", got)
	}
	req.Header.Set("X-Real-Ip", "198.51.100.4")
	if got := ClientIP(req); got != "198.51.100.4" {
		t.Fatalf("expected X-Real-Ip, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestRedisLimiterSharedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	h := Chain(okHandler(), RateLimit(NewRedisLimiter(rdb, 1, time.Minute, "test"), RateLimitOptions{}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", nil)
	first.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", rr.Header().Get("X-RateLimit-Remaining"))
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", nil)
	second.Header.Set("X-Forwarded-For", "203.0.113.9")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on 429")
	}
	if ttl := mr.TTL("test:203.0.113.9"); ttl <= 0 {
		t.Fatalf("expected window expiry on key, got %s", ttl)
	}
}

func TestRedisLimiterFailureModes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	lim := NewRedisLimiter(rdb, 5, time.Minute, "test")
	h := Chain(okHandler(), RateLimit(lim, RateLimitOptions{}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when redis is down, got %d", rr.Code)
	}

	h = Chain(okHandler(), RateLimit(lim, RateLimitOptions{FailOpen: true}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected fail-open pass-through, got %d", rr.Code)
	}
}
