package trust

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/repository"
	myredis "karrot_server/internal/dao/redis"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/pkg/constants"
	"karrot_server/pkg/errorx"
	"karrot_server/pkg/validate"
)

const (
	// thresholdTTL 阈值缓存的最长时间，成员离开时主动失效
	thresholdTTL = 10 * time.Minute
	// activeMemberAge 加入满这么久的成员才计入阈值
	activeMemberAge = 24 * time.Hour
	// invalidateDelay 延时双删的间隔
	invalidateDelay = 500 * time.Millisecond
)

// trustService 信任与角色晋升业务逻辑实现
type trustService struct {
	repos     *repository.Repositories
	cache     myredis.AsyncCacheService
	publisher mq.Publisher
	cfg       config.TrustConfig
	now       func() time.Time
}

// NewTrustService 构造函数，cache 可以为 nil
func NewTrustService(repos *repository.Repositories, cache myredis.AsyncCacheService, publisher mq.Publisher, cfg config.TrustConfig) *trustService {
	return &trustService{
		repos:     repos,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// GiveTrust 为成员背书，随后重新评估其角色
func (s *trustService) GiveTrust(ctx context.Context, req request.TrustRequest) (*model.Trust, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.GivenById == req.TrusteeId {
		return nil, errorx.Validation("不能信任自己")
	}
	now := s.now()
	var trust *model.Trust
	var events []mq.Event
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		trustee, err := s.membershipsTx(txRepos, req)
		if err != nil {
			return err
		}
		trust = &model.Trust{MembershipId: trustee.ID, GivenById: req.GivenById}
		if err := txRepos.Trust.Create(trust); err != nil {
			return err
		}
		events, err = s.ReevaluateTx(ctx, txRepos, trustee.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events...)
	return trust, nil
}

// RevokeTrust 撤回背书，随后重新评估角色
func (s *trustService) RevokeTrust(ctx context.Context, req request.TrustRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	now := s.now()
	var events []mq.Event
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		trustee, err := s.membershipsTx(txRepos, req)
		if err != nil {
			return err
		}
		n, err := txRepos.Trust.Delete(trustee.ID, req.GivenById)
		if err != nil {
			return err
		}
		if n == 0 {
			return errorx.Newf(errorx.CodeNotFound, "用户 %d 没有信任成员 %d", req.GivenById, trustee.ID)
		}
		events, err = s.ReevaluateTx(ctx, txRepos, trustee.ID, now)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events...)
	return nil
}

// membershipsTx 确认双方都是小组成员，返回被信任方的成员关系
func (s *trustService) membershipsTx(txRepos *repository.Repositories, req request.TrustRequest) (*model.GroupMember, error) {
	if _, err := txRepos.GroupMember.FindByGroupAndUser(req.GroupId, req.GivenById); err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.Validation("用户 %d 不是小组成员", req.GivenById)
		}
		return nil, err
	}
	trustee, err := txRepos.GroupMember.FindByGroupAndUser(req.GroupId, req.TrusteeId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.Validation("用户 %d 不是小组成员", req.TrusteeId)
		}
		return nil, err
	}
	return trustee, nil
}

// Threshold 小组当前的晋升阈值，只读已提交的数据并缓存
// 缓存值带有效期，下一个成员满 24 小时的时刻起失效
func (s *trustService) Threshold(ctx context.Context, groupId uint, now time.Time) (int, error) {
	key := myredis.ThresholdKey(groupId)
	if t, ok := s.cachedThreshold(ctx, key, now); ok {
		return t, nil
	}

	t, err := s.thresholdTx(s.repos, groupId, now)
	if err != nil {
		return 0, err
	}
	validUntil := now.Add(thresholdTTL)
	next, err := s.repos.GroupMember.EarliestCreatedAfter(groupId, now.Add(-activeMemberAge))
	if err != nil {
		return 0, err
	}
	if next != nil {
		if matured := next.Add(activeMemberAge); matured.Before(validUntil) {
			validUntil = matured
		}
	}
	s.storeThreshold(ctx, key, t, now, validUntil)
	return t, nil
}

// thresholdTx 按事务内可见的成员数计算阈值，不经过缓存
func (s *trustService) thresholdTx(txRepos *repository.Repositories, groupId uint, now time.Time) (int, error) {
	n, err := txRepos.GroupMember.CountCreatedBefore(groupId, now.Add(-activeMemberAge))
	if err != nil {
		return 0, err
	}
	return EditorThreshold(n, s.cfg.MaxThreshold()), nil
}

// cachedThreshold 缓存格式为 "阈值:失效时刻毫秒"
func (s *trustService) cachedThreshold(ctx context.Context, key string, now time.Time) (int, bool) {
	if s.cache == nil {
		return 0, false
	}
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("read trust threshold cache failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	value, until, found := strings.Cut(cached, ":")
	if !found {
		return 0, false
	}
	t, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	ms, err := strconv.ParseInt(until, 10, 64)
	if err != nil || now.UnixMilli() >= ms {
		return 0, false
	}
	return t, true
}

func (s *trustService) storeThreshold(ctx context.Context, key string, t int, now, validUntil time.Time) {
	ttl := validUntil.Sub(now)
	if s.cache == nil || ttl <= 0 {
		return
	}
	value := strconv.Itoa(t) + ":" + strconv.FormatInt(validUntil.UnixMilli(), 10)
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		zap.L().Warn("write trust threshold cache failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateThreshold 成员变动的事务提交后清除阈值缓存
// 先同步删除，再异步补删一次，覆盖并发读者在提交前算出旧值后回填的情况
func (s *trustService) InvalidateThreshold(ctx context.Context, groupId uint) {
	if s.cache == nil {
		return
	}
	key := myredis.ThresholdKey(groupId)
	if err := s.cache.Delete(ctx, key); err != nil {
		zap.L().Warn("invalidate trust threshold failed", zap.Uint("groupId", groupId), zap.Error(err))
	}
	time.AfterFunc(invalidateDelay, func() {
		s.cache.SubmitTask(func() {
			if err := s.cache.Delete(context.Background(), key); err != nil {
				zap.L().Warn("delayed invalidate trust threshold failed", zap.Uint("groupId", groupId), zap.Error(err))
			}
		})
	})
}

// ReevaluateTx 在调用方事务中重新计算成员的信任数并按需授予或撤销编辑角色
// 返回需要在提交后发布的事件；角色不变时不写历史
func (s *trustService) ReevaluateTx(ctx context.Context, txRepos *repository.Repositories, membershipId uint, now time.Time) ([]mq.Event, error) {
	member, err := txRepos.GroupMember.FindById(membershipId)
	if err != nil {
		return nil, err
	}
	count, err := txRepos.Trust.CountByMembership(member.ID)
	if err != nil {
		return nil, err
	}
	threshold, err := s.thresholdTx(txRepos, member.GroupId, now)
	if err != nil {
		return nil, err
	}

	var (
		typus     model.HistoryType
		eventType mq.EventType
	)
	switch Evaluate(count, threshold, member.IsEditor()) {
	case DecisionNone:
		return nil, nil
	case DecisionGrant:
		member.AddRole(constants.ROLE_EDITOR)
		typus, eventType = model.HistoryMemberBecameEditor, mq.EventUserBecameEditor
	case DecisionRevoke:
		member.RemoveRole(constants.ROLE_EDITOR)
		typus, eventType = model.HistoryUserLostEditorRole, mq.EventUserLostEditor
	}
	if err := txRepos.GroupMember.UpdateRoles(member); err != nil {
		return nil, err
	}

	h := &model.History{
		Typus:          typus,
		GroupId:        member.GroupId,
		AffectedUserId: &member.UserId,
		ObjectId:       &member.ID,
	}
	if err := h.SetPayload(map[string]any{"trustCount": count, "threshold": threshold}); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeInvariant, "序列化历史")
	}
	if err := txRepos.History.Create(h); err != nil {
		return nil, err
	}

	zap.L().Info("editor role changed",
		zap.Uint("groupId", member.GroupId),
		zap.Uint("userId", member.UserId),
		zap.String("type", string(eventType)),
		zap.Int64("trust", count),
		zap.Int("threshold", threshold),
	)
	e := mq.NewEvent(eventType, member.GroupId, member.UserId, member.ID, now)
	e.Payload = map[string]any{"trustCount": count, "threshold": threshold}
	return []mq.Event{e}, nil
}

func (s *trustService) publish(ctx context.Context, events ...mq.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		zap.L().Error("publish trust events failed", zap.Error(err))
	}
}
