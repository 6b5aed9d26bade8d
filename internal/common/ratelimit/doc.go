// Package ratelimit limits API requests per caller with either an in-memory
// (golang.org/x/time/rate) or a Redis-backed sliding window backend.
//
// # Basic Usage
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//		Enabled:  true,
//		Requests: 100,
//		Window:   time.Minute,
//		Type:     ratelimit.BackendLocal,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	router.Use(ratelimit.HTTPMiddleware(limiter, ratelimit.UserKey, logger))
//
// The distributed backend shares one window across every API instance and
// needs a RedisInterface (internal/redis.Client satisfies it):
//
//	limiter, err := ratelimit.New(cfg, redisClient)
//
// # Backend Types
//
// - BackendLocal: token bucket refilled at Requests per Window, burst of Requests
// - BackendDistributed: Redis sorted-set sliding window of length Window
//
// When Redis is unreachable the distributed backend lets the request through
// and logs the failure. Rate limiting is a courtesy to the store, not a
// correctness guarantee; the engine's own quota and lease rules do not rely
// on it.
//
// # Thread Safety
//
// All limiters are safe for concurrent use.
package ratelimit
