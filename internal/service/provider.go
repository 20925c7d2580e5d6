// Package service 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/repository"
	myredis "karrot_server/internal/dao/redis"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/service/activity"
	"karrot_server/internal/service/conflict"
	"karrot_server/internal/service/group"
	"karrot_server/internal/service/trust"
	"karrot_server/internal/worker"
)

// Services 聚合所有 Service 实例
type Services struct {
	Activity ActivityService // 活动系列 Service
	Conflict ConflictService // 冲突议题 Service
	Trust    TrustService    // 信任 Service
	Group    GroupService    // 小组成员 Service
}

// NewServices 创建并注入所有 Service 实例
// 依赖顺序：trust → group（级联时重新评估角色）→ conflict（投票移除成员时调用 group）
// cache 可以为 nil
func NewServices(repos *repository.Repositories, cache myredis.AsyncCacheService, publisher mq.Publisher, conf *config.Config) *Services {
	trustSvc := trust.NewTrustService(repos, cache, publisher, conf.TrustConfig)
	groupSvc := group.NewGroupService(repos, trustSvc, publisher)
	conflictSvc := conflict.NewConflictService(repos, publisher, groupSvc, conf.ConflictConfig)
	activitySvc := activity.NewActivityService(repos, publisher, conf.ActivityConfig)

	return &Services{
		Activity: activitySvc,
		Conflict: conflictSvc,
		Trust:    trustSvc,
		Group:    groupSvc,
	}
}

// Sweeps 后台清扫任务：系列展开约每小时一次，投票到期约每分钟一次
func (s *Services) Sweeps(conf *config.Config) []worker.Sweep {
	return []worker.Sweep{
		{Name: "series", Interval: conf.ActivityConfig.SweepInterval(), Run: s.Activity.UpdateAllSeries},
		{Name: "votings", Interval: conf.ConflictConfig.SweepInterval(), Run: s.Conflict.ProcessExpiredVotings},
	}
}
