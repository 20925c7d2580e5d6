// Package redis 本文件包含 Redis 连接初始化逻辑
// 使用 github.com/redis/go-redis/v9 作为底层客户端
package redis

import (
	"context"
	"strconv"
	"time"

	"karrot_server/internal/config"
	"karrot_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// Init 根据配置创建 Redis 连接并启动缓存 Worker Pool
// 未配置 host 时返回 nil，调用方改用 NewMemoryCache
func Init(cfg *config.RedisConfig) (*RedisCache, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, nil
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(port),
		Password: cfg.Password,
		DB:       cfg.Db,
		// 连接池配置
		PoolSize:     20,
		MinIdleConns: 4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", client.Options().Addr)
	}

	// 缓存失效任务量很小，4 个 Worker 足够
	return NewRedisCache(client, 4, 512), nil
}
