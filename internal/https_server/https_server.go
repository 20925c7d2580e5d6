// Package https_server 创建运维 HTTP 服务器
// 负责创建 Gin 引擎实例并配置中间件和路由
package https_server

import (
	"fmt"
	"net/http"
	"time"

	"karrot_server/internal/config"
	"karrot_server/internal/handler"
	"karrot_server/internal/infrastructure/logger"
	"karrot_server/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init 返回配置好的 Gin 引擎
// 不使用 gin.Default()，日志和恢复由 zap 中间件接管
func Init(handlers *handler.Handlers, mode string) *gin.Engine {
	if mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	router.RegisterRoutes(engine, handlers)
	return engine
}

// NewServer 包装为 http.Server，便于优雅关闭
func NewServer(cfg config.MainConfig, engine *gin.Engine) *http.Server {
	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
