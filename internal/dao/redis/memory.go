package redis

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 进程内缓存实现，用于未配置 Redis 的单进程部署和测试
// SubmitTask 同步执行
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value    string
	expireAt time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (m *MemoryCache) getLocked(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return item, false
	}
	if !item.expireAt.IsZero() && !m.now().Before(item.expireAt) {
		delete(m.items, key)
		return item, false
	}
	return item, true
}

func (m *MemoryCache) setLocked(key, value string, ttl time.Duration) {
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expireAt = m.now().Add(ttl)
	}
	m.items[key] = item
}

// Set 设置键值对，ttl <= 0 表示不过期
func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

// Get 键不存在或已过期返回空字符串
func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.getLocked(key)
	if !ok {
		return "", nil
	}
	return item.value, nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryCache) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.getLocked(key); ok {
		return false, nil
	}
	m.setLocked(key, token, ttl)
	return true, nil
}

func (m *MemoryCache) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.getLocked(key); ok && item.value == token {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryCache) SubmitTask(action func()) {
	if action != nil {
		action()
	}
}

var _ AsyncCacheService = (*MemoryCache)(nil)
