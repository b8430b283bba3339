package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
	"github.com/quotedesk/pkg/models"
)

// RedisCache keeps the latest reconciled record per symbol in Redis so other
// processes can read quotes without hitting the providers. Optional; the
// application runs without it.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg *config.Config, log *logrus.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	entry := logger.WithComponent(log, "cache")
	entry.Info("Connected to Redis")

	return &RedisCache{
		client: client,
		ttl:    cfg.Redis.TTL,
		logger: entry,
	}, nil
}

func recordKey(symbol string) string {
	return fmt.Sprintf("quote:%s", symbol)
}

// SetRecord stores a record under quote:<SYMBOL> with the configured TTL.
func (c *RedisCache) SetRecord(ctx context.Context, record *models.SymbolRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := c.client.Set(ctx, recordKey(record.Symbol), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache record: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
