package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-scaler/internal/infrastructure/config"

	"github.com/go-redis/redis/v8"
)

// RedisStore 以 Redis 保存推論回覆
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 創建 Redis 快取並測試連接
func NewRedisStore(ctx context.Context, cfg config.CacheConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.TTL), nil
}

// NewRedisStoreWithClient 使用既有客戶端
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get 獲取緩存
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get cache: %w", err)
	}
	return val, nil
}

// Set 設置緩存
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Close 關閉連接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping 檢查 Redis 連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
