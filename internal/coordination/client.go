// Package coordination is the volatile coordination store: locks,
// active-state cache, step counters, pending queue, rate-limit
// buckets, and metadata — all advisory, never authoritative.
package coordination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/config"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/retry"
)

// Client wraps redis.Client with the thin operation surface the
// coordination store is built on, plus a Lua script cache for the
// atomic compound operations below.
type Client struct {
	client  *redis.Client
	scripts sync.Map // map[scriptName]sha
}

// NewClient connects to Redis with retry logic.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	client := redis.NewClient(opts)

	retrier := retry.New(&retry.Config{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	})

	result := retrier.Do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	if result.Err != nil {
		client.Close()
		if result.LastError != nil {
			return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", result.Attempts, result.LastError)
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", result.Err)
	}

	return &Client{client: client}, nil
}

// Raw returns the underlying redis.Client.
func (c *Client) Raw() *redis.Client { return c.client }

// Close closes the Redis connection.
func (c *Client) Close() error { return c.client.Close() }

// HealthCheck performs a health check on Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	if result != "PONG" {
		return fmt.Errorf("redis health check unexpected response: %s", result)
	}
	return nil
}

// IsConnected reports whether Redis is reachable right now.
func (c *Client) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *Client) loadScript(ctx context.Context, name, script string) (string, error) {
	sha, err := c.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", name, err)
	}
	c.scripts.Store(name, sha)
	return sha, nil
}

// evalWithFallback runs a named script by cached SHA, reloading and
// retrying once on NOSCRIPT (server restarted / script evicted).
func (c *Client) evalWithFallback(ctx context.Context, name, script string, keys []string, args ...interface{}) *redis.Cmd {
	if shaVal, ok := c.scripts.Load(name); ok {
		sha := shaVal.(string)
		result := c.client.EvalSha(ctx, sha, keys, args...)
		if result.Err() != nil && isNoScriptError(result.Err()) {
			if sha, err := c.loadScript(ctx, name, script); err == nil {
				return c.client.EvalSha(ctx, sha, keys, args...)
			}
		}
		return result
	}

	sha, err := c.loadScript(ctx, name, script)
	if err != nil {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(err)
		return cmd
	}
	return c.client.EvalSha(ctx, sha, keys, args...)
}

func isNoScriptError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return len(s) >= 8 && s[:8] == "NOSCRIPT"
}
