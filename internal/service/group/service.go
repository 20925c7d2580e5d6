// Package group 实现小组、取货点与成员关系的维护
// 成员离开时的级联清理（信任、议题、未来活动）都在这里显式完成
package group

import (
	"context"
	"time"

	"go.uber.org/zap"

	"karrot_server/internal/dao/mysql/repository"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/internal/service/conflict"
	"karrot_server/pkg/constants"
	"karrot_server/pkg/errorx"
	"karrot_server/pkg/validate"
)

// RoleEvaluator 由信任服务实现
type RoleEvaluator interface {
	// ReevaluateTx 在调用方事务中重新评估成员角色
	ReevaluateTx(ctx context.Context, txRepos *repository.Repositories, membershipId uint, now time.Time) ([]mq.Event, error)
	// InvalidateThreshold 成员变动提交后清除阈值缓存
	InvalidateThreshold(ctx context.Context, groupId uint)
}

// groupService 小组业务逻辑实现
type groupService struct {
	repos     *repository.Repositories
	roles     RoleEvaluator
	publisher mq.Publisher
	now       func() time.Time
}

// NewGroupService 构造函数，注入所有依赖
func NewGroupService(repos *repository.Repositories, roles RoleEvaluator, publisher mq.Publisher) *groupService {
	return &groupService{
		repos:     repos,
		roles:     roles,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateGroup 创建小组，时区默认 UTC
func (s *groupService) CreateGroup(ctx context.Context, req request.CreateGroupRequest) (*model.GroupInfo, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, errorx.Validation("未知时区 %q", tz)
	}
	group := &model.GroupInfo{Name: req.Name, Timezone: tz}
	if err := s.repos.Group.Create(group); err != nil {
		return nil, err
	}
	return group, nil
}

// CreatePlace 在小组下创建取货点
func (s *groupService) CreatePlace(ctx context.Context, req request.CreatePlaceRequest) (*model.Place, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, errorx.Validation("未知时区 %q", req.Timezone)
		}
	}
	if _, err := s.repos.Group.FindById(req.GroupId); err != nil {
		return nil, err
	}
	place := &model.Place{GroupId: req.GroupId, Name: req.Name, Timezone: req.Timezone}
	if err := s.repos.Group.CreatePlace(place); err != nil {
		return nil, err
	}
	return place, nil
}

// JoinGroup 加入小组，新成员只有基础角色
func (s *groupService) JoinGroup(ctx context.Context, req request.JoinGroupRequest) (*model.GroupMember, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	now := s.now()
	member := &model.GroupMember{
		GroupId:           req.GroupId,
		UserId:            req.UserId,
		Roles:             []string{constants.ROLE_MEMBER},
		NotificationTypes: defaultNotificationTypes(),
		LastSeenAt:        now.UTC(),
	}
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		if _, err := txRepos.Group.FindById(req.GroupId); err != nil {
			return err
		}
		_, err := txRepos.GroupMember.FindByGroupAndUser(req.GroupId, req.UserId)
		if err == nil {
			return errorx.Validation("用户 %d 已是小组成员", req.UserId)
		}
		if !errorx.IsNotFound(err) {
			return err
		}
		if err := txRepos.GroupMember.Create(member); err != nil {
			return err
		}
		return txRepos.History.Create(&model.History{
			Typus:    model.HistoryGroupJoin,
			GroupId:  req.GroupId,
			UserId:   &member.UserId,
			ObjectId: &member.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, req.GroupId)
	s.publish(ctx, mq.NewEvent(mq.EventMemberJoined, req.GroupId, req.UserId, member.ID, now))
	return member, nil
}

// LeaveGroup 主动退出小组
func (s *groupService) LeaveGroup(ctx context.Context, req request.LeaveGroupRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	now := s.now()
	var events []mq.Event
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		var err error
		events, err = s.removeTx(ctx, txRepos, req.GroupId, req.UserId, now)
		if err != nil {
			return err
		}
		if err := txRepos.History.Create(&model.History{
			Typus:   model.HistoryGroupLeave,
			GroupId: req.GroupId,
			UserId:  &req.UserId,
		}); err != nil {
			return err
		}
		events = append(events, mq.NewEvent(mq.EventMemberLeft, req.GroupId, req.UserId, 0, now))
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, req.GroupId)
	s.publish(ctx, events...)
	return nil
}

// RemoveMemberTx 在调用方事务中移除成员，供投票结算使用
// 历史与 member_removed 事件由调用方写入，提交后调用方需调用 MemberRemoved
func (s *groupService) RemoveMemberTx(txRepos *repository.Repositories, groupId, userId uint, at time.Time) ([]mq.Event, error) {
	return s.removeTx(context.Background(), txRepos, groupId, userId, at)
}

// MemberRemoved 移除成员的事务提交后清理缓存
func (s *groupService) MemberRemoved(ctx context.Context, groupId uint) {
	s.invalidate(ctx, groupId)
}

// removeTx 删除成员关系并执行级联清理：
// 删除双向信任并重新评估受影响的成员，取消针对该成员的议题，
// 移除其在未开始活动中的报名
func (s *groupService) removeTx(ctx context.Context, txRepos *repository.Repositories, groupId, userId uint, now time.Time) ([]mq.Event, error) {
	member, err := txRepos.GroupMember.FindByGroupAndUser(groupId, userId)
	if err != nil {
		return nil, err
	}

	trusted, err := txRepos.Trust.FindMembershipIdsTrustedBy(groupId, userId)
	if err != nil {
		return nil, err
	}
	if err := txRepos.Trust.DeleteGivenBy(trusted, userId); err != nil {
		return nil, err
	}
	if err := txRepos.Trust.DeleteByMembership(member.ID); err != nil {
		return nil, err
	}

	events, err := conflict.CancelCasesTx(txRepos, groupId, userId, now)
	if err != nil {
		return nil, err
	}
	if err := txRepos.Activity.DeleteUpcomingParticipations(groupId, userId, now); err != nil {
		return nil, err
	}
	if err := txRepos.GroupMember.Delete(member.ID); err != nil {
		return nil, err
	}

	// 删除成员关系后再评估，阈值在事务内按新的成员数计算
	for _, id := range trusted {
		if id == member.ID || s.roles == nil {
			continue
		}
		changed, err := s.roles.ReevaluateTx(ctx, txRepos, id, now)
		if err != nil {
			return nil, err
		}
		events = append(events, changed...)
	}

	zap.L().Info("member removed from group",
		zap.Uint("groupId", groupId),
		zap.Uint("userId", userId),
		zap.Int("reevaluated", len(trusted)),
	)
	return events, nil
}

func (s *groupService) invalidate(ctx context.Context, groupId uint) {
	if s.roles != nil {
		s.roles.InvalidateThreshold(ctx, groupId)
	}
}

func (s *groupService) publish(ctx context.Context, events ...mq.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		zap.L().Error("publish group events failed", zap.Error(err))
	}
}

// defaultNotificationTypes 新成员默认订阅的通知
func defaultNotificationTypes() []string {
	return []string{"weekly_summary", "daily_activity_notification", "new_application", "conflict_resolution"}
}
