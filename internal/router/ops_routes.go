package router

import (
	"karrot_server/internal/handler"

	"github.com/gin-gonic/gin"
)

// RegisterOpsRoutes 运维路由组
func RegisterOpsRoutes(r *gin.Engine, h *handler.OpsHandler) {
	ops := r.Group("/ops")
	{
		ops.GET("/sweeps", h.ListSweeps)
		ops.POST("/sweeps/:name", h.RunSweep)
	}
}
