// Package redis wraps the Redis client used for real-time event fan-out.
// Engine events are published to Pub/Sub channels consumed by the WebSocket
// bridge and any external subscriber.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/redis/go-redis/v9"
	"github.com/tiervault/tiervault/pkg/staking"
	"github.com/tiervault/tiervault/pkg/utils"
	"go.uber.org/zap"
)

// Client wraps the Redis client for real-time event notifications.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient creates a new Redis client using environment variables for
// configuration:
//   - REDIS_HOST: Redis host (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_DB: Redis database number (default: "0")
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)

	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis", zap.String("addr", addr), zap.Int("db", db))
	return &Client{client: rdb, logger: logger}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client for callers that need the
// full API.
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// PublishEvent marshals an engine event and publishes it to its channel
// (tiervault:{eventType}). Best-effort: failures are logged, never returned,
// so event fan-out can never fail the engine.
func (c *Client) PublishEvent(ctx context.Context, event staking.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Warn("Failed to marshal event", zap.String("type", event.EventType()), zap.Error(err))
		return
	}
	channel := staking.Channel(event.EventType())
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// Subscribe subscribes to one or more Pub/Sub channels. The caller owns the
// returned PubSub and must close it.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

// PSubscribe subscribes to channel patterns, e.g. "tiervault:*".
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	c.logger.Debug("Subscribing to Redis patterns", zap.Strings("patterns", patterns))
	return c.client.PSubscribe(ctx, patterns...)
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
