// Package handler 提供运维 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
package handler

// Handlers 聚合所有 Handler 实例
// Router 层通过此结构访问各个 Handler
type Handlers struct {
	Ops *OpsHandler
}

// NewHandlers 创建并注入所有 Handler 实例
func NewHandlers(sweeps SweepRunner, health HealthChecker) *Handlers {
	return &Handlers{
		Ops: NewOpsHandler(sweeps, health),
	}
}
