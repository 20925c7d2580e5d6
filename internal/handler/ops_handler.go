package handler

import (
	"context"
	"time"

	"karrot_server/internal/dto/respond"

	"github.com/gin-gonic/gin"
)

// SweepRunner 由 worker.Sweeper 实现
type SweepRunner interface {
	Names() []string
	RunOnce(ctx context.Context, name string) (respond.SweepRespond, error)
}

// HealthChecker 检查依赖是否可用，返回 nil 表示健康
type HealthChecker func(ctx context.Context) error

// OpsHandler 运维接口：健康检查和手动触发清扫
type OpsHandler struct {
	sweeps SweepRunner
	health HealthChecker
}

// NewOpsHandler health 可以为 nil
func NewOpsHandler(sweeps SweepRunner, health HealthChecker) *OpsHandler {
	return &OpsHandler{sweeps: sweeps, health: health}
}

// Healthz GET /healthz
func (h *OpsHandler) Healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			HandleError(c, err)
			return
		}
	}
	HandleSuccess(c, gin.H{"status": "ok"})
}

// ListSweeps GET /ops/sweeps
func (h *OpsHandler) ListSweeps(c *gin.Context) {
	HandleSuccess(c, gin.H{"sweeps": h.sweeps.Names()})
}

// RunSweep POST /ops/sweeps/:name
func (h *OpsHandler) RunSweep(c *gin.Context) {
	summary, err := h.sweeps.RunOnce(c.Request.Context(), c.Param("name"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, summary)
}
