// Package redis 定义缓存与分布式锁接口
// Service 层依赖此接口而非具体 Redis 实现
package redis

import (
	"context"
	"time"
)

// CacheService 缓存服务接口
// 抽象缓存操作，支持 Redis 和本地内存两种实现
type CacheService interface {
	// Set 设置键值对并指定过期时间
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get 获取键对应的值（键不存在返回空字符串和 nil）
	Get(ctx context.Context, key string) (string, error)
	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error
}

// LockService 租约锁接口
// 多个进程竞争同一把锁时只有一个能拿到，持有者通过 token 释放
type LockService interface {
	// TryLock 尝试获取锁，已被占用时返回 false
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock 释放锁，只有 token 匹配时才删除
	Unlock(ctx context.Context, key, token string) error
}

// AsyncCacheService 异步缓存服务接口
// 提供异步任务提交能力，用于非阻塞缓存失效
type AsyncCacheService interface {
	CacheService
	LockService
	// SubmitTask 提交异步缓存任务
	SubmitTask(action func())
}
