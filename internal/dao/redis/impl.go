// Package redis 提供 AsyncCacheService 接口的 Redis 实现
package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"karrot_server/pkg/errorx"
)

// unlockScript 只删除 token 匹配的锁，避免误删其他进程续上的租约
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache Redis 缓存实现
// 同时实现 CacheService、LockService 和 AsyncCacheService，
// 各模块只声明自己需要的最小接口
type RedisCache struct {
	client *redis.Client
	pool   *workerPool
}

// NewRedisCache 创建 Redis 缓存实例并启动 Worker Pool
func NewRedisCache(client *redis.Client, workerNum, taskChanSize int) *RedisCache {
	return &RedisCache{
		client: client,
		pool:   newWorkerPool(workerNum, taskChanSize),
	}
}

// Set 设置键值对并指定过期时间
func (r *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis set key %s", key)
	}
	return nil
}

// Get 获取键对应的值（键不存在返回空字符串和 nil）
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errorx.Wrapf(err, errorx.CodeCacheError, "redis get key %s", key)
	}
	return value, nil
}

// Delete 删除键，UNLINK 在键不存在时也不报错
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Unlink(ctx, key).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis unlink key %s", key)
	}
	return nil
}

// TryLock SET NX PX
func (r *RedisCache) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, errorx.Wrapf(err, errorx.CodeCacheError, "redis setnx key %s", key)
	}
	return ok, nil
}

// Unlock 比较 token 后删除
func (r *RedisCache) Unlock(ctx context.Context, key, token string) error {
	if err := unlockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis unlock key %s", key)
	}
	return nil
}

// SubmitTask 提交异步缓存任务
func (r *RedisCache) SubmitTask(action func()) {
	r.pool.submit(action)
}

// Close 停止 Worker 并关闭连接
func (r *RedisCache) Close() error {
	r.pool.close()
	if err := r.client.Close(); err != nil {
		return errorx.Wrap(err, errorx.CodeCacheError, "redis close")
	}
	return nil
}

// workerPool 固定数量的后台协程消费任务通道
type workerPool struct {
	mu     sync.RWMutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
}

func newWorkerPool(workerNum, bufferSize int) *workerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	p := &workerPool{tasks: make(chan func(), bufferSize)}
	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.run()
	}
	zap.L().Info("Redis Cache Workers started", zap.Int("workers", workerNum), zap.Int("buffer", bufferSize))
	return p
}

// run 单个 Worker 的消费循环，任务 panic 不影响后续任务
func (p *workerPool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.exec(task)
	}
}

func (p *workerPool) exec(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("Redis Worker panic", zap.Any("recover", rec))
		}
	}()
	if task != nil {
		task()
	}
}

// submit 通道已满或已关闭时降级为同步执行
func (p *workerPool) submit(action func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.closed {
		select {
		case p.tasks <- action:
			return
		default:
			zap.L().Warn("Redis cache task channel full, executing synchronously")
		}
	}
	p.exec(action)
}

// close 等待已提交的任务执行完毕
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// 确保 RedisCache 实现了 AsyncCacheService 接口
var _ AsyncCacheService = (*RedisCache)(nil)
