package cache

import (
	"context"
	"sync"
	"time"

	"recipe-scaler/internal/infrastructure/config"
	"recipe-scaler/internal/pkg/common"

	"go.uber.org/zap"
)

// Manager 程序內快取，過期與容量淘汰
type Manager struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	store map[string]cacheEntry
	stats cacheStats

	done      chan struct{}
	closeOnce sync.Once
}

// cacheEntry 緩存條目
type cacheEntry struct {
	value       string
	expiresAt   time.Time
	lastAccess  time.Time
	accessCount int
}

// cacheStats 緩存統計
type cacheStats struct {
	hits      int64
	misses    int64
	evictions int64
}

// Stats 快取統計快照
type Stats struct {
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// NewManager 創建新的緩存管理器
func NewManager(cfg config.CacheConfig) *Manager {
	m := &Manager{
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     time.Now,
		store:   make(map[string]cacheEntry),
		done:    make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go m.startCleanup(cfg.CleanupInterval)
	}

	common.LogInfo("快取管理員已初始化",
		zap.Int("最大容量", cfg.MaxSize),
		zap.Duration("存活時間", cfg.TTL),
		zap.Duration("清理間隔", cfg.CleanupInterval),
	)

	return m
}

// Get 獲取緩存值
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.store[key]
	if !exists {
		m.stats.misses++
		return "", ErrCacheMiss
	}

	now := m.now()
	if now.After(entry.expiresAt) {
		delete(m.store, key)
		m.stats.evictions++
		m.stats.misses++
		return "", ErrCacheMiss
	}

	entry.lastAccess = now
	entry.accessCount++
	m.store[key] = entry
	m.stats.hits++
	return entry.value, nil
}

// Set 設置緩存值
func (m *Manager) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.store[key]; !exists && m.maxSize > 0 && len(m.store) >= m.maxSize {
		if evicted := m.cleanup(); evicted > 0 {
			common.LogDebug("快取清理執行", zap.Int("清理數量", evicted))
		}
		for len(m.store) >= m.maxSize {
			m.evictLRU()
		}
	}

	now := m.now()
	m.store[key] = cacheEntry{
		value:      value,
		expiresAt:  now.Add(m.ttl),
		lastAccess: now,
	}
	return nil
}

// startCleanup 定期清理過期緩存
func (m *Manager) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.cleanup()
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}

// cleanup 清理過期的緩存，呼叫者需持有鎖
func (m *Manager) cleanup() int {
	now := m.now()
	count := 0

	for key, entry := range m.store {
		if now.After(entry.expiresAt) {
			delete(m.store, key)
			count++
			m.stats.evictions++
		}
	}
	return count
}

// evictLRU 淘汰最少使用的項目，呼叫者需持有鎖
func (m *Manager) evictLRU() {
	var oldestKey string
	var oldestAccess time.Time
	var lowestAccessCount int

	for key, entry := range m.store {
		if oldestKey == "" ||
			entry.accessCount < lowestAccessCount ||
			(entry.accessCount == lowestAccessCount && entry.lastAccess.Before(oldestAccess)) {
			oldestKey = key
			oldestAccess = entry.lastAccess
			lowestAccessCount = entry.accessCount
		}
	}

	if oldestKey != "" {
		delete(m.store, oldestKey)
		m.stats.evictions++
	}
}

// GetStats 獲取緩存統計信息
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Size:      len(m.store),
		MaxSize:   m.maxSize,
		Hits:      m.stats.hits,
		Misses:    m.stats.misses,
		Evictions: m.stats.evictions,
	}
}

// Close 關閉緩存管理器
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.store = make(map[string]cacheEntry)
		common.LogInfo("快取管理員已關閉",
			zap.Int64("命中次數", m.stats.hits),
			zap.Int64("未命中次數", m.stats.misses),
			zap.Int64("淘汰次數", m.stats.evictions),
		)
	})
	return nil
}
