package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/HammerMeetNail/livebingo/internal/logging"
)

// ScriptRunner is the slice of the redis client the limiter needs.
type ScriptRunner interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// fixedWindowScript increments the counter and starts the window on first hit.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// RateLimiter caps requests per key within a fixed window. Marks and bingo
// calls are keyed per player so one noisy client cannot flood a game.
type RateLimiter struct {
	redis  ScriptRunner
	limit  int64
	window time.Duration
	prefix string
	keyFn  func(r *http.Request) string
	// failOpen lets requests through when Redis errors.
	failOpen bool
	fallback *localLimiter
}

func NewRateLimiter(redis ScriptRunner, limit int64, window time.Duration, prefix string, keyFn func(r *http.Request) string, failOpen bool) *RateLimiter {
	return &RateLimiter{
		redis:    redis,
		limit:    limit,
		window:   window,
		prefix:   prefix,
		keyFn:    keyFn,
		failOpen: failOpen,
	}
}

// PlayerKey keys a request by the game and player in its path.
func PlayerKey(r *http.Request) string {
	gameID := r.PathValue("id")
	playerID := r.PathValue("playerId")
	if gameID == "" || playerID == "" {
		return ""
	}
	return gameID + ":" + playerID
}

func (rl *RateLimiter) keyFor(r *http.Request) string {
	keySuffix := ""
	if rl.keyFn != nil {
		keySuffix = rl.keyFn(r)
	}
	if keySuffix == "" {
		keySuffix = GetClientIP(r)
	}
	return rl.prefix + keySuffix
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.redis == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.keyFor(r)

		windowSeconds := int64(rl.window.Seconds())
		if windowSeconds < 1 {
			windowSeconds = 1
		}
		result, err := rl.redis.Eval(r.Context(), fixedWindowScript, []string{key}, windowSeconds).Result()
		if err != nil {
			logging.Error("Rate limit Redis error", map[string]interface{}{"error": err.Error(), "key": key})
			rl.unavailable(w, r, next)
			return
		}

		var count int64
		switch v := result.(type) {
		case int64:
			count = v
		case float64:
			count = int64(v)
		default:
			logging.Error("Rate limit script returned unexpected type", map[string]interface{}{"type": fmt.Sprintf("%T", result)})
			rl.unavailable(w, r, next)
			return
		}

		if count > rl.limit {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithLocalFallback limits per process while Redis is unreachable, allowing
// the same average rate as the shared window.
func (rl *RateLimiter) WithLocalFallback() *RateLimiter {
	every := rl.window / time.Duration(max(rl.limit, 1))
	rl.fallback = newLocalLimiter(rate.Every(every), int(max(rl.limit/4, 1)))
	return rl
}

func (rl *RateLimiter) unavailable(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if rl.fallback != nil {
		if !rl.fallback.allow(rl.keyFor(r)) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
		return
	}
	if rl.failOpen {
		next.ServeHTTP(w, r)
		return
	}
	writeError(w, http.StatusServiceUnavailable, "Rate limiting temporarily unavailable")
}

const maxLocalKeys = 10000

// localLimiter is a token bucket per key, kept in memory.
type localLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func newLocalLimiter(every rate.Limit, burst int) *localLimiter {
	return &localLimiter{every: every, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxLocalKeys {
			l.buckets = make(map[string]*rate.Limiter)
		}
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetClientIP extracts the client IP from the request, respecting X-Forwarded-For
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
