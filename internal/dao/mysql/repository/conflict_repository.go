// Package repository 提供数据访问层的具体实现
// 本文件实现 ConflictRepository 接口，处理议题、投票、提案和票的数据库操作
package repository

import (
	"time"

	"karrot_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// conflictRepository ConflictRepository 接口的实现
type conflictRepository struct {
	db *gorm.DB
}

// NewConflictRepository 创建 ConflictRepository 实例
func NewConflictRepository(db *gorm.DB) ConflictRepository {
	return &conflictRepository{db: db}
}

// withVotes 预加载提案和票，提案按 ID 排序
func withVotes(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Proposals", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Proposals.Votes", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

// CreateCase 创建议题，首轮投票和提案随关联一起写入
func (r *conflictRepository) CreateCase(c *model.Case) error {
	for i := range c.Votings {
		c.Votings[i].ExpiresAt = c.Votings[i].ExpiresAt.UTC()
	}
	if err := r.db.Create(c).Error; err != nil {
		return wrapDBError(err, "创建议题")
	}
	return nil
}

// FindCaseById 查找议题，投票按轮次顺序预加载
func (r *conflictRepository) FindCaseById(id uint) (*model.Case, error) {
	var c model.Case
	if err := r.db.
		Preload("Votings", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&c, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询议题 id=%d", id)
	}
	return &c, nil
}

// HasOngoingCase 判断成员是否已有进行中的议题
func (r *conflictRepository) HasOngoingCase(groupId, affectedUserId uint) (bool, error) {
	var n int64
	if err := r.db.Model(&model.Case{}).
		Where("group_id = ? AND affected_user_id = ? AND status = ?", groupId, affectedUserId, model.CaseOngoing).
		Count(&n).Error; err != nil {
		return false, wrapDBErrorf(err, "查询进行中议题 group_id=%d user_id=%d", groupId, affectedUserId)
	}
	return n > 0, nil
}

// FindOngoingCases 查找成员的进行中议题
func (r *conflictRepository) FindOngoingCases(groupId, affectedUserId uint) ([]model.Case, error) {
	var list []model.Case
	if err := r.db.
		Where("group_id = ? AND affected_user_id = ? AND status = ?", groupId, affectedUserId, model.CaseOngoing).
		Order("id").
		Find(&list).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询进行中议题 group_id=%d user_id=%d", groupId, affectedUserId)
	}
	return list, nil
}

// UpdateCaseStatus 更新议题状态
func (r *conflictRepository) UpdateCaseStatus(caseId uint, status model.CaseStatus, at time.Time) error {
	if err := r.db.Model(&model.Case{}).Where("id = ?", caseId).Updates(map[string]any{
		"status":            status,
		"status_changed_at": at.UTC(),
	}).Error; err != nil {
		return wrapDBErrorf(err, "更新议题状态 id=%d", caseId)
	}
	return nil
}

// FindVotingById 查找投票
func (r *conflictRepository) FindVotingById(id uint) (*model.Voting, error) {
	var v model.Voting
	if err := withVotes(r.db).First(&v, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询投票 id=%d", id)
	}
	return &v, nil
}

// FindLatestVoting 查找议题的最新一轮投票
func (r *conflictRepository) FindLatestVoting(caseId uint) (*model.Voting, error) {
	var v model.Voting
	if err := withVotes(r.db).Where("case_id = ?", caseId).Order("id DESC").First(&v).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询最新投票 case_id=%d", caseId)
	}
	return &v, nil
}

// CountVotings 统计议题的投票轮数
func (r *conflictRepository) CountVotings(caseId uint) (int64, error) {
	var n int64
	if err := r.db.Model(&model.Voting{}).Where("case_id = ?", caseId).Count(&n).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计投票轮数 case_id=%d", caseId)
	}
	return n, nil
}

// ListExpiredUndecidedVotingIds 列出已到期且尚未结算的投票
// decided_at 为空是清扫的过滤条件，已结算的投票不会被再次处理
func (r *conflictRepository) ListExpiredUndecidedVotingIds(now time.Time) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&model.Voting{}).
		Where("expires_at <= ? AND decided_at IS NULL", now.UTC()).
		Order("expires_at, id").
		Pluck("id", &ids).Error; err != nil {
		return nil, wrapDBError(err, "查询到期投票")
	}
	return ids, nil
}

// LockUndecidedVoting 行锁读取尚未结算的投票
func (r *conflictRepository) LockUndecidedVoting(id uint) (*model.Voting, error) {
	var v model.Voting
	if err := withVotes(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("decided_at IS NULL").
		First(&v, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "锁定投票 id=%d", id)
	}
	return &v, nil
}

// MarkVotingDecided 结算投票，带 decided_at IS NULL 条件保证只结算一次
func (r *conflictRepository) MarkVotingDecided(votingId uint, acceptedProposalId *uint, at time.Time) (int64, error) {
	res := r.db.Model(&model.Voting{}).
		Where("id = ? AND decided_at IS NULL", votingId).
		Updates(map[string]any{
			"accepted_proposal_id": acceptedProposalId,
			"decided_at":           at.UTC(),
		})
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "结算投票 id=%d", votingId)
	}
	return res.RowsAffected, nil
}

// SaveProposalScore 写入提案总分
func (r *conflictRepository) SaveProposalScore(proposalId uint, score int) error {
	if err := r.db.Model(&model.Proposal{}).Where("id = ?", proposalId).Update("sum_score", score).Error; err != nil {
		return wrapDBErrorf(err, "写入提案总分 id=%d", proposalId)
	}
	return nil
}

// CreateVoting 创建新一轮投票，提案随关联一起写入
func (r *conflictRepository) CreateVoting(v *model.Voting) error {
	v.ExpiresAt = v.ExpiresAt.UTC()
	if err := r.db.Create(v).Error; err != nil {
		return wrapDBErrorf(err, "创建投票 case_id=%d", v.CaseId)
	}
	return nil
}

// DeleteVotesOfUser 删除用户在一轮投票中的全部票
func (r *conflictRepository) DeleteVotesOfUser(votingId, userId uint) (int64, error) {
	proposals := r.db.Model(&model.Proposal{}).Select("id").Where("voting_id = ?", votingId)
	res := r.db.Where("user_id = ? AND proposal_id IN (?)", userId, proposals).Delete(&model.Vote{})
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "删除用户投票 voting_id=%d user_id=%d", votingId, userId)
	}
	return res.RowsAffected, nil
}

// CreateVotes 批量创建票
func (r *conflictRepository) CreateVotes(votes []model.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	if err := r.db.Create(&votes).Error; err != nil {
		return wrapDBError(err, "创建投票记录")
	}
	return nil
}
