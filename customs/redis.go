package customs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChecker implements Checker using Redis for distributed deployments.
type RedisChecker struct {
	client   *redis.Client
	prefix   string
	limit    int
	window   time.Duration
	failOpen bool
}

// NewRedisChecker creates a Redis-backed checker. With failOpen set,
// Redis errors allow the request instead of denying it.
func NewRedisChecker(client *redis.Client, prefix string, limit int, window time.Duration, failOpen bool) *RedisChecker {
	if prefix == "" {
		prefix = "ember:customs:"
	}
	return &RedisChecker{
		client:   client,
		prefix:   prefix,
		limit:    limit,
		window:   window,
		failOpen: failOpen,
	}
}

func (c *RedisChecker) key(subject, action string) string {
	return c.prefix + subject + ":" + action
}

// Check counts the request with an atomic INCR+PEXPIRE and denies once the
// count exceeds the limit for the window.
func (c *RedisChecker) Check(ctx context.Context, subject, action string) error {
	script := redis.NewScript(`
		local count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return count
	`)

	result, err := script.Run(ctx, c.client, []string{c.key(subject, action)}, c.window.Milliseconds()).Result()
	if err != nil {
		if c.failOpen {
			return nil
		}
		return fmt.Errorf("customs: redis check failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return fmt.Errorf("customs: unexpected result type")
	}

	if count > int64(c.limit) {
		return &BlockedError{Action: action, RetryAfter: c.window}
	}
	return nil
}

// Reset clears the counter for a subject+action pair.
func (c *RedisChecker) Reset(ctx context.Context, subject, action string) error {
	if err := c.client.Del(ctx, c.key(subject, action)).Err(); err != nil {
		return fmt.Errorf("customs: redis reset failed: %w", err)
	}
	return nil
}
