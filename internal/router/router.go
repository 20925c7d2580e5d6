// Package router 提供 HTTP 路由注册
package router

import (
	"karrot_server/internal/handler"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有路由，在 https_server.Init() 中调用
func RegisterRoutes(r *gin.Engine, h *handler.Handlers) {
	r.GET("/healthz", h.Ops.Healthz)
	RegisterOpsRoutes(r, h.Ops)
}
