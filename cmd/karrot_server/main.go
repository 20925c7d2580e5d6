package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"karrot_server/internal/config"
	dao "karrot_server/internal/dao/mysql"
	myredis "karrot_server/internal/dao/redis"
	"karrot_server/internal/handler"
	"karrot_server/internal/https_server"
	"karrot_server/internal/infrastructure/logger"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/service"
	"karrot_server/internal/worker"
	"karrot_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()
	zap.L().Info("日志初始化成功")

	snowflake.Init(conf.SnowflakeConfig.MachineID)

	// 3. 初始化数据库
	repos, err := dao.Init(&conf.MysqlConfig)
	if err != nil {
		zap.L().Fatal("数据库初始化失败", zap.Error(err))
	}
	zap.L().Info("数据库初始化成功")

	// 4. 初始化 Redis，未配置时使用进程内缓存
	var cache myredis.AsyncCacheService
	redisCache, err := myredis.Init(&conf.RedisConfig)
	switch {
	case err != nil:
		zap.L().Fatal("Redis 初始化失败", zap.Error(err))
	case redisCache != nil:
		cache = redisCache
		zap.L().Info("Redis 初始化成功")
	default:
		cache = myredis.NewMemoryCache()
		zap.L().Warn("未配置 Redis，清扫租约和阈值缓存仅在本进程内生效")
	}

	// 5. 初始化事件发布
	if conf.KafkaConfig.MessageMode == "kafka" {
		if err := mq.CreateTopic(conf.KafkaConfig); err != nil {
			zap.L().Warn("创建 Kafka 主题失败", zap.Error(err))
		}
	}
	publisher := mq.NewPublisher(conf.KafkaConfig)

	// 6. 初始化 Service 层 (依赖注入)
	svc := service.NewServices(repos, cache, publisher, conf)
	zap.L().Info("Service 层初始化成功")

	// 7. 启动后台清扫
	sweeper := worker.NewSweeper(cache, svc.Sweeps(conf)...)
	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)

	// 8. 启动运维接口
	engine := https_server.Init(handler.NewHandlers(sweeper, repos.Ping), conf.MainConfig.Mode)
	srv := https_server.NewServer(conf.MainConfig, engine)
	go func() {
		zap.L().Info("运维接口启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("关闭运维接口失败", zap.Error(err))
	}
	cancel()
	sweeper.Stop()

	if err := publisher.Close(); err != nil {
		zap.L().Error("关闭事件发布失败", zap.Error(err))
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			zap.L().Error("关闭 Redis 失败", zap.Error(err))
		}
	}
	if err := repos.Close(); err != nil {
		zap.L().Error("关闭数据库失败", zap.Error(err))
	}
	zap.L().Info("服务器已关闭")
}
