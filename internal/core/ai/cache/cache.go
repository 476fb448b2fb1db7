package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"recipe-scaler/internal/infrastructure/config"
)

// ErrCacheMiss 快取中沒有該鍵
var ErrCacheMiss = errors.New("cache miss")

// Store 推論回覆快取
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Key 以模型與提示內容產生快取鍵
func Key(model, stage, prompt string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + prompt))
	return fmt.Sprintf("oracle:%s:%s", stage, hex.EncodeToString(hash[:]))
}

// New 依設定建立快取，停用時返回 nil
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case config.CacheBackendRedis:
		store, err := NewRedisStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return NewManager(cfg), nil
	}
}
