// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供运维 Handler 和后台清扫调用
package service

import (
	"context"
	"time"

	"karrot_server/internal/dao/mysql/repository"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/dto/respond"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/internal/service/conflict"
)

// ActivityService 活动系列与报名业务接口
type ActivityService interface {
	// CreateSeries 创建系列并立即展开
	CreateSeries(ctx context.Context, req request.CreateSeriesRequest) (*model.ActivitySeries, error)
	// UpdateSeries 修改系列，变更只传播到未开始的活动
	UpdateSeries(ctx context.Context, req request.UpdateSeriesRequest) (*model.ActivitySeries, error)
	// DeleteSeries 冻结规则、最后一次对账后删除系列
	DeleteSeries(ctx context.Context, seriesId, userId uint) (respond.ReconcileRespond, error)
	// ReconcileSeries 对单个系列做一次对账
	ReconcileSeries(ctx context.Context, seriesId uint, now time.Time) (respond.ReconcileRespond, error)
	// UpdateAllSeries 系列清扫
	UpdateAllSeries(ctx context.Context, now time.Time) (respond.SweepRespond, error)
	// AddParticipant 报名活动名额
	AddParticipant(ctx context.Context, req request.JoinActivityRequest) error
	// RemoveParticipant 取消报名
	RemoveParticipant(ctx context.Context, activityId, userId uint) error
}

// ConflictService 冲突议题与投票业务接口
type ConflictService interface {
	// CreateCase 发起议题
	CreateCase(ctx context.Context, req request.CreateCaseRequest) (*model.Case, error)
	// SaveVotes 提交或替换投票
	SaveVotes(ctx context.Context, req request.SaveVotesRequest) ([]model.Vote, error)
	// DeleteVotes 撤回投票
	DeleteVotes(ctx context.Context, votingId, userId uint) error
	// CloseVoting 结算一轮投票
	CloseVoting(ctx context.Context, votingId uint, now time.Time) (conflict.Outcome, error)
	// ProcessExpiredVotings 投票到期清扫
	ProcessExpiredVotings(ctx context.Context, now time.Time) (respond.SweepRespond, error)
}

// TrustService 信任与编辑角色业务接口
type TrustService interface {
	// GiveTrust 为成员背书
	GiveTrust(ctx context.Context, req request.TrustRequest) (*model.Trust, error)
	// RevokeTrust 撤回背书
	RevokeTrust(ctx context.Context, req request.TrustRequest) error
	// Threshold 小组当前晋升阈值（只读查询，可能来自缓存）
	Threshold(ctx context.Context, groupId uint, now time.Time) (int, error)
	// ReevaluateTx 在事务中重新评估成员角色
	ReevaluateTx(ctx context.Context, txRepos *repository.Repositories, membershipId uint, now time.Time) ([]mq.Event, error)
	// InvalidateThreshold 事务提交后清除阈值缓存
	InvalidateThreshold(ctx context.Context, groupId uint)
}

// GroupService 小组与成员关系业务接口
type GroupService interface {
	// CreateGroup 创建小组
	CreateGroup(ctx context.Context, req request.CreateGroupRequest) (*model.GroupInfo, error)
	// CreatePlace 创建取货点
	CreatePlace(ctx context.Context, req request.CreatePlaceRequest) (*model.Place, error)
	// JoinGroup 加入小组
	JoinGroup(ctx context.Context, req request.JoinGroupRequest) (*model.GroupMember, error)
	// LeaveGroup 退出小组并级联清理
	LeaveGroup(ctx context.Context, req request.LeaveGroupRequest) error
	// RemoveMemberTx 在事务中移除成员
	RemoveMemberTx(txRepos *repository.Repositories, groupId, userId uint, at time.Time) ([]mq.Event, error)
}
