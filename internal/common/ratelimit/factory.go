package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"intent-scheduler/internal/common/logging"
)

// New creates a rate limiter for config.Type. The distributed backend needs a
// Redis client.
func New(config Config, logger logging.Logger, redisClient ...RedisInterface) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case "", BackendLocal:
		return NewLocalLimiter(config)
	case BackendDistributed, BackendRedis:
		if len(redisClient) == 0 || redisClient[0] == nil {
			return nil, fmt.Errorf("redis client is required for distributed rate limiter")
		}
		return NewDistributedLimiter(config, redisClient[0], logger)
	default:
		return nil, fmt.Errorf("unsupported rate limiter backend type: %s", config.Type)
	}
}

// HTTPMiddleware rejects requests over the limit with 429 and a JSON body.
func HTTPMiddleware(limiter Limiter, keyFunc func(*http.Request) string, logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	stats := limiter.Stats()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if limiter.TryAcquireForKey(r.Context(), key) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("Request rate limited",
				logging.String("key", key),
				logging.String("path", r.URL.Path),
			)

			if requests, ok := stats["requests"].(int); ok {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(requests))
				w.Header().Set("X-RateLimit-Remaining", "0")
			}
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		})
	}
}

// IPKey extracts the client address, preferring proxy headers.
func IPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserKey keys on the X-User-ID header and falls back to the client address
// for worker calls that carry no user.
func UserKey(r *http.Request) string {
	if user := r.Header.Get("X-User-ID"); user != "" {
		return "user:" + user
	}
	return "ip:" + IPKey(r)
}
