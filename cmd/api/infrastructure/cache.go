package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"user-crud-service/internal/adapter/cache"
	"user-crud-service/internal/config"
	redisclient "user-crud-service/pkg/redis"
)

// NewRedisClient connects to the Redis shared by the user cache and the rate
// limiter.
func NewRedisClient(ctx context.Context, cfg *config.Config, l *zap.Logger) (*redisclient.Client, error) {
	rdb, err := redisclient.NewClient(ctx, redisclient.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		MinIdleConn: cfg.Redis.MinIdleConn,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewUserCache returns the read-through cache for users, or nil when caching
// is switched off.
func NewUserCache(rdb *redisclient.Client, cfg *config.Config, l *zap.Logger) *cache.RedisUserCache {
	if rdb == nil || !cfg.Redis.CacheEnabled {
		return nil
	}
	ttl := time.Duration(cfg.Redis.CacheTTL) * time.Second
	l.Info("user cache enabled", zap.Duration("ttl", ttl))
	return cache.NewRedisUserCache(rdb.Client, ttl, l)
}
