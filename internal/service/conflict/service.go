package conflict

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/repository"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/dto/respond"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/pkg/errorx"
	"karrot_server/pkg/validate"
)

// MemberRemover 由成员服务实现，在调用方的事务中移除成员并完成级联清理
type MemberRemover interface {
	RemoveMemberTx(txRepos *repository.Repositories, groupId, userId uint, at time.Time) ([]mq.Event, error)
	// MemberRemoved 在事务提交后调用
	MemberRemoved(ctx context.Context, groupId uint)
}

// ErrVotingDecided 投票已被结算（通常是另一个进程先完成），清扫时跳过
var ErrVotingDecided = errorx.New(errorx.CodeNotFound, "投票已结算")

// conflictService 冲突议题业务逻辑实现
type conflictService struct {
	repos     *repository.Repositories
	publisher mq.Publisher
	remover   MemberRemover
	cfg       config.ConflictConfig
	now       func() time.Time
}

// NewConflictService 构造函数，注入所有依赖
func NewConflictService(repos *repository.Repositories, publisher mq.Publisher, remover MemberRemover, cfg config.ConflictConfig) *conflictService {
	return &conflictService{
		repos:     repos,
		publisher: publisher,
		remover:   remover,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateCase 发起议题，同时创建首轮投票和默认提案
func (s *conflictService) CreateCase(ctx context.Context, req request.CreateCaseRequest) (*model.Case, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	now := s.now()
	c := &model.Case{
		GroupId:        req.GroupId,
		CreatedById:    req.CreatedById,
		AffectedUserId: req.AffectedUserId,
		Topic:          req.Topic,
		Status:         model.CaseOngoing,
		Votings: []model.Voting{{
			ExpiresAt: now.Add(s.cfg.VotingDuration()),
			Proposals: initialProposals(req.AffectedUserId, req.CustomOptions),
		}},
	}

	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		creator, err := txRepos.GroupMember.FindByGroupAndUser(req.GroupId, req.CreatedById)
		if err != nil {
			if errorx.IsNotFound(err) {
				return errorx.Validation("发起人不是小组成员")
			}
			return err
		}
		if !creator.IsEditor() {
			return errorx.Validation("只有编辑可以发起议题")
		}
		if _, err := txRepos.GroupMember.FindByGroupAndUser(req.GroupId, req.AffectedUserId); err != nil {
			if errorx.IsNotFound(err) {
				return errorx.Validation("被议用户不是小组成员")
			}
			return err
		}
		ongoing, err := txRepos.Conflict.HasOngoingCase(req.GroupId, req.AffectedUserId)
		if err != nil {
			return err
		}
		if ongoing {
			return errorx.Validation("该成员已有进行中的议题")
		}
		if err := txRepos.Conflict.CreateCase(c); err != nil {
			return err
		}
		return txRepos.History.Create(&model.History{
			Typus:          model.HistoryCaseCreated,
			GroupId:        c.GroupId,
			UserId:         &c.CreatedById,
			AffectedUserId: &c.AffectedUserId,
			ObjectId:       &c.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, mq.NewEvent(mq.EventCaseCreated, c.GroupId, c.AffectedUserId, c.ID, now))
	return c, nil
}

// SaveVotes 提交投票
// 先删除该用户本轮的全部旧票再重新创建，时间戳反映最新意向
func (s *conflictService) SaveVotes(ctx context.Context, req request.SaveVotesRequest) ([]model.Vote, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	now := s.now()
	var votes []model.Vote
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		voting, err := s.openVotingTx(txRepos, req.VotingId, req.UserId, now)
		if err != nil {
			return err
		}
		belongs := make(map[uint]bool, len(voting.Proposals))
		for _, p := range voting.Proposals {
			belongs[p.ID] = true
		}
		seen := make(map[uint]bool, len(req.Scores))
		for _, sc := range req.Scores {
			if !belongs[sc.ProposalId] {
				return errorx.Validation("提案 %d 不属于投票 %d", sc.ProposalId, voting.ID)
			}
			if seen[sc.ProposalId] {
				return errorx.Validation("提案 %d 重复打分", sc.ProposalId)
			}
			seen[sc.ProposalId] = true
			votes = append(votes, model.Vote{ProposalId: sc.ProposalId, UserId: req.UserId, Score: sc.Score})
		}

		if _, err := txRepos.Conflict.DeleteVotesOfUser(voting.ID, req.UserId); err != nil {
			return err
		}
		return txRepos.Conflict.CreateVotes(votes)
	})
	if err != nil {
		return nil, err
	}
	return votes, nil
}

// DeleteVotes 撤回用户在本轮的全部投票
func (s *conflictService) DeleteVotes(ctx context.Context, votingId, userId uint) error {
	now := s.now()
	return s.repos.Transaction(func(txRepos *repository.Repositories) error {
		voting, err := s.openVotingTx(txRepos, votingId, userId, now)
		if err != nil {
			return err
		}
		n, err := txRepos.Conflict.DeleteVotesOfUser(voting.ID, userId)
		if err != nil {
			return err
		}
		if n == 0 {
			return errorx.Newf(errorx.CodeNotFound, "用户 %d 在投票 %d 中没有投票", userId, votingId)
		}
		return nil
	})
}

// openVotingTx 检查投票仍在进行且用户是小组编辑
func (s *conflictService) openVotingTx(txRepos *repository.Repositories, votingId, userId uint, now time.Time) (*model.Voting, error) {
	voting, err := txRepos.Conflict.FindVotingById(votingId)
	if err != nil {
		return nil, err
	}
	if !voting.IsOngoing() || !voting.ExpiresAt.After(now) {
		return nil, errorx.Validation("投票已结束")
	}
	c, err := txRepos.Conflict.FindCaseById(voting.CaseId)
	if err != nil {
		return nil, err
	}
	member, err := txRepos.GroupMember.FindByGroupAndUser(c.GroupId, userId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.Validation("用户不是小组成员")
		}
		return nil, err
	}
	if !member.IsEditor() {
		return nil, errorx.Validation("只有编辑可以投票")
	}
	return voting, nil
}

// ProcessExpiredVotings 结算所有已到期的投票
// 每个投票独立事务，失败只记录日志并留待下次清扫
func (s *conflictService) ProcessExpiredVotings(ctx context.Context, now time.Time) (respond.SweepRespond, error) {
	summary := respond.SweepRespond{Name: "votings"}
	ids, err := s.repos.Conflict.ListExpiredUndecidedVotingIds(now)
	if err != nil {
		return summary, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			zap.L().Warn("voting sweep interrupted", zap.Int("remaining", len(ids)-summary.Processed-summary.Failed))
			break
		}
		outcome, err := s.CloseVoting(ctx, id, now)
		if err != nil {
			if errors.Is(err, ErrVotingDecided) {
				zap.L().Debug("voting already decided", zap.Uint("votingId", id))
				continue
			}
			summary.Failed++
			zap.L().Error("close voting failed", zap.Uint("votingId", id), zap.Error(err))
			continue
		}
		summary.Processed++
		zap.L().Debug("voting closed",
			zap.Uint("votingId", id),
			zap.String("outcome", outcome.Kind.String()),
			zap.Int("votes", outcome.VoteCount),
		)
	}
	return summary, nil
}

// CloseVoting 结算一轮投票并在同一事务中执行结算动作
// 继续讨论时，新一轮投票只在本轮标记结算之后创建
func (s *conflictService) CloseVoting(ctx context.Context, votingId uint, now time.Time) (Outcome, error) {
	var outcome Outcome
	var events []mq.Event
	var groupId uint
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		voting, err := txRepos.Conflict.LockUndecidedVoting(votingId)
		if err != nil {
			if errorx.IsNotFound(err) {
				return errorx.Wrapf(ErrVotingDecided, errorx.CodeNotFound, "投票 %d", votingId)
			}
			return err
		}
		outcome, err = Decide(voting)
		if err != nil {
			return err
		}
		c, err := txRepos.Conflict.FindCaseById(voting.CaseId)
		if err != nil {
			return err
		}
		groupId = c.GroupId

		for _, p := range voting.Proposals {
			if err := txRepos.Conflict.SaveProposalScore(p.ID, outcome.Scores[p.ID]); err != nil {
				return err
			}
		}
		n, err := txRepos.Conflict.MarkVotingDecided(voting.ID, outcome.AcceptedId, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return errorx.Wrapf(ErrVotingDecided, errorx.CodeNotFound, "投票 %d", voting.ID)
		}

		events, err = s.applyOutcomeTx(txRepos, c, voting, outcome, now)
		return err
	})
	if err != nil {
		return outcome, err
	}
	if outcome.RemoveUserId != nil && s.remover != nil {
		s.remover.MemberRemoved(ctx, groupId)
	}
	s.publish(ctx, events...)
	return outcome, nil
}

// applyOutcomeTx 执行结算动作
func (s *conflictService) applyOutcomeTx(txRepos *repository.Repositories, c *model.Case, voting *model.Voting, outcome Outcome, now time.Time) ([]mq.Event, error) {
	var events []mq.Event
	switch outcome.Kind {
	case OutcomeCancelled:
		if err := txRepos.Conflict.UpdateCaseStatus(c.ID, model.CaseCancelled, now); err != nil {
			return nil, err
		}
		if err := caseHistory(txRepos, model.HistoryCaseCancelled, c, voting.ID); err != nil {
			return nil, err
		}
		events = append(events, mq.NewEvent(mq.EventCaseCancelled, c.GroupId, c.AffectedUserId, c.ID, now))

	case OutcomeDecided:
		if err := txRepos.Conflict.UpdateCaseStatus(c.ID, model.CaseDecided, now); err != nil {
			return nil, err
		}
		if err := caseHistory(txRepos, model.HistoryVotingEnded, c, voting.ID); err != nil {
			return nil, err
		}
		events = append(events, votingEndedEvent(c, voting, outcome, now))
		if outcome.RemoveUserId != nil {
			removed, err := s.removeMemberTx(txRepos, c, *outcome.RemoveUserId, now)
			if err != nil {
				return nil, err
			}
			events = append(events, removed...)
		}

	case OutcomeFurtherDiscussion:
		if err := caseHistory(txRepos, model.HistoryVotingEnded, c, voting.ID); err != nil {
			return nil, err
		}
		next := &model.Voting{
			CaseId:    c.ID,
			ExpiresAt: now.Add(s.cfg.VotingDuration()),
			Proposals: cloneProposals(voting.Proposals),
		}
		if err := txRepos.Conflict.CreateVoting(next); err != nil {
			return nil, err
		}
		events = append(events,
			votingEndedEvent(c, voting, outcome, now),
			mq.NewEvent(mq.EventNewVoting, c.GroupId, c.AffectedUserId, next.ID, now),
		)

	default:
		return nil, errorx.Invariant("未知的结算结果 %d", outcome.Kind)
	}
	return events, nil
}

// removeMemberTx 移出被议成员并写入历史
func (s *conflictService) removeMemberTx(txRepos *repository.Repositories, c *model.Case, userId uint, now time.Time) ([]mq.Event, error) {
	if s.remover == nil {
		return nil, errorx.Invariant("未配置成员移除服务")
	}
	events, err := s.remover.RemoveMemberTx(txRepos, c.GroupId, userId, now)
	if err != nil {
		return nil, err
	}
	h := &model.History{
		Typus:          model.HistoryMemberRemoved,
		GroupId:        c.GroupId,
		AffectedUserId: &userId,
		ObjectId:       &c.ID,
	}
	if err := txRepos.History.Create(h); err != nil {
		return nil, err
	}
	return append(events, mq.NewEvent(mq.EventMemberRemoved, c.GroupId, userId, c.ID, now)), nil
}

// CancelCasesTx 取消某成员在小组内所有进行中的议题，成员退出小组时调用
func CancelCasesTx(txRepos *repository.Repositories, groupId, affectedUserId uint, now time.Time) ([]mq.Event, error) {
	cases, err := txRepos.Conflict.FindOngoingCases(groupId, affectedUserId)
	if err != nil {
		return nil, err
	}
	var events []mq.Event
	for i := range cases {
		c := &cases[i]
		voting, err := txRepos.Conflict.FindLatestVoting(c.ID)
		if err != nil && !errorx.IsNotFound(err) {
			return nil, err
		}
		var votingId uint
		if voting != nil {
			votingId = voting.ID
			if voting.IsOngoing() {
				if _, err := txRepos.Conflict.MarkVotingDecided(voting.ID, nil, now); err != nil {
					return nil, err
				}
			}
		}
		if err := txRepos.Conflict.UpdateCaseStatus(c.ID, model.CaseCancelled, now); err != nil {
			return nil, err
		}
		if err := caseHistory(txRepos, model.HistoryCaseCancelled, c, votingId); err != nil {
			return nil, err
		}
		events = append(events, mq.NewEvent(mq.EventCaseCancelled, groupId, affectedUserId, c.ID, now))
	}
	return events, nil
}

func caseHistory(txRepos *repository.Repositories, typus model.HistoryType, c *model.Case, votingId uint) error {
	h := &model.History{
		Typus:          typus,
		GroupId:        c.GroupId,
		AffectedUserId: &c.AffectedUserId,
		ObjectId:       &c.ID,
	}
	if err := h.SetPayload(map[string]any{"votingId": votingId}); err != nil {
		return errorx.Wrap(err, errorx.CodeInvariant, "序列化历史")
	}
	return txRepos.History.Create(h)
}

func votingEndedEvent(c *model.Case, voting *model.Voting, outcome Outcome, now time.Time) mq.Event {
	e := mq.NewEvent(mq.EventVotingEnded, c.GroupId, c.AffectedUserId, voting.ID, now)
	e.Payload = map[string]any{
		"caseId":  c.ID,
		"outcome": outcome.Kind.String(),
		"votes":   outcome.VoteCount,
	}
	if outcome.AcceptedId != nil {
		e.Payload["acceptedProposalId"] = *outcome.AcceptedId
	}
	return e
}

func (s *conflictService) publish(ctx context.Context, events ...mq.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		zap.L().Error("publish conflict events failed", zap.Error(err))
	}
}
