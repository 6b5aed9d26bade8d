package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lucsky/cuid"
)

// Client wraps go-redis with the operations the API rate limiter needs.
type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NewClient connects and pings; a Redis that cannot be reached is an error
// at startup rather than on the first request.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// slidingWindowScript trims the window, counts it and records the request
// only when it fits, all in one round trip so concurrent callers cannot
// overshoot the limit. Returns {allowed, count before this request}.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '0', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
	return {0, count}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {1, count}
`)

// CheckRateLimit records one request against key in a sliding window and
// reports whether it fits under limit, along with the number of requests
// already in the window before this one. Rejected requests are not counted.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixMilli()

	res, err := slidingWindowScript.Run(ctx, c.rdb, []string{key},
		now.UnixMilli(),
		windowStart,
		limit,
		(window * 2).Milliseconds(),
		cuid.New(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("failed to check rate limit: unexpected reply %v", res)
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	return allowed == 1, int(count), nil
}
