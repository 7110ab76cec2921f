package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeScripter struct {
	EvalFunc func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	keys     []string
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.keys = append(f.keys, keys...)
	return f.EvalFunc(ctx, script, keys, args...)
}

func countingScripter() *fakeScripter {
	counts := map[string]int64{}
	f := &fakeScripter{}
	f.EvalFunc = func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
		counts[keys[0]]++
		cmd := redis.NewCmd(ctx)
		cmd.SetVal(counts[keys[0]])
		return cmd
	}
	return f
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serveMarks(t *testing.T, handler http.Handler, path string) int {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("POST /api/games/{id}/players/{playerId}/marks", handler)
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	redisFake := countingScripter()
	rl := NewRateLimiter(redisFake, 2, time.Minute, "ratelimit:mark:", PlayerKey, true)
	handler := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		if code := serveMarks(t, handler, "/api/games/g1/players/p1/marks"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := serveMarks(t, handler, "/api/games/g1/players/p1/marks"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := serveMarks(t, handler, "/api/games/g1/players/p2/marks"); code != http.StatusNoContent {
		t.Fatalf("expected other player to be unaffected, got %d", code)
	}
	if redisFake.keys[0] != "ratelimit:mark:g1:p1" {
		t.Fatalf("expected player key, got %q", redisFake.keys[0])
	}
}

func TestRateLimiter_RedisErrorFailOpenAndClosed(t *testing.T) {
	failing := &fakeScripter{EvalFunc: func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}}

	open := NewRateLimiter(failing, 1, time.Minute, "rl:", PlayerKey, true).Middleware(okHandler())
	if code := serveMarks(t, open, "/api/games/g1/players/p1/marks"); code != http.StatusNoContent {
		t.Fatalf("expected fail open to pass, got %d", code)
	}

	closed := NewRateLimiter(failing, 1, time.Minute, "rl:", PlayerKey, false).Middleware(okHandler())
	if code := serveMarks(t, closed, "/api/games/g1/players/p1/marks"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected fail closed to return 503, got %d", code)
	}
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	handler := NewRateLimiter(nil, 1, time.Minute, "rl:", PlayerKey, false).Middleware(okHandler())
	for i := 0; i < 3; i++ {
		if code := serveMarks(t, handler, "/api/games/g1/players/p1/marks"); code != http.StatusNoContent {
			t.Fatalf("expected pass through, got %d", code)
		}
	}
}

func TestRateLimiter_FallsBackToClientIP(t *testing.T) {
	redisFake := countingScripter()
	handler := NewRateLimiter(redisFake, 5, time.Minute, "rl:", func(*http.Request) string { return "" }, true).Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if redisFake.keys[0] != "rl:203.0.113.9" {
		t.Fatalf("expected ip key, got %q", redisFake.keys[0])
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := GetClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected 192.0.2.1, got %q", got)
	}
	req.Header.Set("X-Real-IP", " 198.51.100.4 ")
	if got := GetClientIP(req); got != "198.51.100.4" {
		t.Fatalf("expected 198.51.100.4, got %q", got)
	}
}

func TestRateLimiter_LocalFallbackWhenRedisDown(t *testing.T) {
	failing := &fakeScripter{EvalFunc: func(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}}
	handler := NewRateLimiter(failing, 8, time.Hour, "rl:", PlayerKey, false).WithLocalFallback().Middleware(okHandler())

	for i := 0; i < 2; i++ {
		if code := serveMarks(t, handler, "/api/games/g1/players/p1/marks"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204 within burst, got %d", i, code)
		}
	}
	if code := serveMarks(t, handler, "/api/games/g1/players/p1/marks"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := serveMarks(t, handler, "/api/games/g1/players/p2/marks"); code != http.StatusNoContent {
		t.Fatalf("expected other player to pass, got %d", code)
	}
}
