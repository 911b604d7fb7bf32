package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProgressPublisher pushes navigation snapshots to Redis: each one is
// published on a channel and the latest is kept under a key for late readers.
// With no URL configured every call is a no-op.
type ProgressPublisher struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	enabled bool
	logger  *zap.SugaredLogger
}

// NewProgressPublisher connects to redisURL. Connection problems disable the
// publisher rather than failing startup.
func NewProgressPublisher(ctx context.Context, redisURL, channel string, ttl time.Duration, logger *zap.SugaredLogger) *ProgressPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &ProgressPublisher{channel: channel, ttl: ttl, logger: logger}

	if redisURL == "" {
		logger.Infow("Redis URL not provided, progress publishing disabled")
		return p
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warnw("Failed to parse Redis URL, progress publishing disabled", "error", err)
		return p
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnw("Failed to connect to Redis, progress publishing disabled", "error", err)
		_ = client.Close()
		return p
	}

	p.client = client
	p.enabled = true
	logger.Infow("Progress publisher connected", "channel", channel)
	return p
}

// Enabled reports whether snapshots reach Redis.
func (p *ProgressPublisher) Enabled() bool {
	return p.enabled
}

// LatestKey is where the most recent snapshot is stored.
func (p *ProgressPublisher) LatestKey() string {
	return p.channel + ":latest"
}

// Publish sends payload as JSON.
func (p *ProgressPublisher) Publish(ctx context.Context, payload interface{}) error {
	if !p.enabled {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.Set(ctx, p.LatestKey(), data, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *ProgressPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
