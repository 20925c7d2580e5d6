// Package repository 定义数据访问层接口和聚合结构
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"context"
	"time"

	"karrot_server/internal/model"

	"gorm.io/gorm"
)

// ==================== Repository 接口定义 ====================

// GroupRepository 小组与取货点数据访问接口
type GroupRepository interface {
	// FindById 根据 ID 查找小组
	FindById(id uint) (*model.GroupInfo, error)
	// Create 创建小组
	Create(group *model.GroupInfo) error
	// FindPlaceById 查找取货点（预加载所属小组，用于解析时区）
	FindPlaceById(id uint) (*model.Place, error)
	// CreatePlace 创建取货点
	CreatePlace(place *model.Place) error
}

// GroupMemberRepository 成员关系数据访问接口（Membership Store）
type GroupMemberRepository interface {
	// FindById 根据 ID 查找成员关系
	FindById(id uint) (*model.GroupMember, error)
	// FindByGroupAndUser 查找用户在小组中的成员关系
	FindByGroupAndUser(groupId, userId uint) (*model.GroupMember, error)
	// FindByIds 批量查找成员关系
	FindByIds(ids []uint) ([]model.GroupMember, error)
	// Create 添加成员
	Create(member *model.GroupMember) error
	// UpdateRoles 只更新角色字段
	UpdateRoles(member *model.GroupMember) error
	// Delete 物理删除成员关系
	Delete(id uint) error
	// CountCreatedBefore 统计在 cutoff 之前加入的成员数
	CountCreatedBefore(groupId uint, cutoff time.Time) (int64, error)
	// EarliestCreatedAfter 返回 cutoff 之后最早的加入时间，没有时返回 nil
	EarliestCreatedAfter(groupId uint, cutoff time.Time) (*time.Time, error)
}

// TrustRepository 信任背书数据访问接口
type TrustRepository interface {
	// Create 创建信任，重复时返回 CodeValidation
	Create(trust *model.Trust) error
	// Exists 判断信任是否已存在
	Exists(membershipId, givenById uint) (bool, error)
	// Delete 删除一条信任，返回影响行数
	Delete(membershipId, givenById uint) (int64, error)
	// CountByMembership 统计成员获得的信任数
	CountByMembership(membershipId uint) (int64, error)
	// DeleteByMembership 删除成员获得的全部信任
	DeleteByMembership(membershipId uint) error
	// FindMembershipIdsTrustedBy 查找用户在小组内背书过的成员关系
	FindMembershipIdsTrustedBy(groupId, userId uint) ([]uint, error)
	// DeleteGivenBy 删除用户对指定成员关系的背书
	DeleteGivenBy(membershipIds []uint, userId uint) error
}

// SeriesRepository 活动系列数据访问接口
type SeriesRepository interface {
	// FindById 查找系列（预加载取货点、小组和名额模板）
	FindById(id uint) (*model.ActivitySeries, error)
	// FindAllIds 返回全部系列 ID，供清扫使用
	FindAllIds() ([]uint, error)
	// Create 创建系列及名额模板
	Create(series *model.ActivitySeries) error
	// Update 更新系列基本字段（不含关联）
	Update(series *model.ActivitySeries) error
	// SaveParticipantType 新增或更新名额模板
	SaveParticipantType(pt *model.SeriesParticipantType) error
	// DeleteParticipantType 删除名额模板
	DeleteParticipantType(id uint) error
	// Delete 删除系列及其名额模板
	Delete(id uint) error
}

// ActivityRepository 活动数据访问接口（Activity Store）
type ActivityRepository interface {
	// FindById 查找活动（预加载名额和参与者）
	FindById(id uint) (*model.Activity, error)
	// ListUpcomingBySeries 按开始时间升序列出系列中开始时间晚于 after 的活动
	ListUpcomingBySeries(seriesId uint, after time.Time) ([]model.Activity, error)
	// Create 创建活动及其名额
	Create(activity *model.Activity) error
	// Delete 删除活动及其名额、参与者
	Delete(id uint) error
	// Detach 使活动脱离系列
	Detach(id uint) error
	// DetachBySeries 使系列的全部活动脱离系列，返回影响行数
	DetachBySeries(seriesId uint) (int64, error)
	// UpdateParticipantType 更新活动名额
	UpdateParticipantType(pt *model.ParticipantType) error
	// CreateParticipantType 为活动新增名额
	CreateParticipantType(pt *model.ParticipantType) error
	// DeleteParticipantType 删除活动名额
	DeleteParticipantType(id uint) error
	// UnlinkParticipantType 使名额脱离系列模板
	UnlinkParticipantType(id uint) error
	// UpdateSchedule 更新活动结束时间、时长标记和描述
	UpdateSchedule(activity *model.Activity) error
	// LockParticipantType 行锁读取名额（SELECT ... FOR UPDATE）
	LockParticipantType(id uint) (*model.ParticipantType, error)
	// CountParticipants 统计名额已参加人数
	CountParticipants(participantTypeId uint) (int64, error)
	// FindParticipant 查找用户在活动中的参与记录
	FindParticipant(activityId, userId uint) (*model.ActivityParticipant, error)
	// CreateParticipant 添加参与者
	CreateParticipant(p *model.ActivityParticipant) error
	// DeleteParticipant 删除参与者，返回影响行数
	DeleteParticipant(activityId, userId uint) (int64, error)
	// DeleteUpcomingParticipations 删除用户在小组内尚未开始活动中的参与记录
	DeleteUpcomingParticipations(groupId, userId uint, now time.Time) error
}

// ConflictRepository 议题与投票数据访问接口（Vote/Case Store）
type ConflictRepository interface {
	// CreateCase 创建议题（连同首轮投票和提案）
	CreateCase(c *model.Case) error
	// FindCaseById 查找议题
	FindCaseById(id uint) (*model.Case, error)
	// HasOngoingCase 判断成员是否已有进行中的议题
	HasOngoingCase(groupId, affectedUserId uint) (bool, error)
	// FindOngoingCases 查找成员的进行中议题
	FindOngoingCases(groupId, affectedUserId uint) ([]model.Case, error)
	// UpdateCaseStatus 更新议题状态
	UpdateCaseStatus(caseId uint, status model.CaseStatus, at time.Time) error
	// FindVotingById 查找投票（预加载提案和票）
	FindVotingById(id uint) (*model.Voting, error)
	// FindLatestVoting 查找议题的最新一轮投票
	FindLatestVoting(caseId uint) (*model.Voting, error)
	// CountVotings 统计议题的投票轮数
	CountVotings(caseId uint) (int64, error)
	// ListExpiredUndecidedVotingIds 列出已到期且尚未结算的投票
	ListExpiredUndecidedVotingIds(now time.Time) ([]uint, error)
	// LockUndecidedVoting 行锁读取尚未结算的投票，已结算时返回 CodeNotFound
	LockUndecidedVoting(id uint) (*model.Voting, error)
	// MarkVotingDecided 结算投票，返回影响行数（已结算时为 0）
	MarkVotingDecided(votingId uint, acceptedProposalId *uint, at time.Time) (int64, error)
	// SaveProposalScore 写入提案总分
	SaveProposalScore(proposalId uint, score int) error
	// CreateVoting 创建新一轮投票（连同提案）
	CreateVoting(v *model.Voting) error
	// DeleteVotesOfUser 删除用户在一轮投票中的全部票
	DeleteVotesOfUser(votingId, userId uint) (int64, error)
	// CreateVotes 批量创建票
	CreateVotes(votes []model.Vote) error
}

// HistoryRepository 历史记录数据访问接口
type HistoryRepository interface {
	// Create 写入一条历史
	Create(h *model.History) error
	// FindByGroup 按时间顺序列出小组历史
	FindByGroup(groupId uint) ([]model.History, error)
}

// ==================== Repository 聚合 ====================

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db          *gorm.DB              // GORM 数据库实例
	Group       GroupRepository       // 小组 Repository
	GroupMember GroupMemberRepository // 成员 Repository
	Trust       TrustRepository       // 信任 Repository
	Series      SeriesRepository      // 活动系列 Repository
	Activity    ActivityRepository    // 活动 Repository
	Conflict    ConflictRepository    // 议题投票 Repository
	History     HistoryRepository     // 历史 Repository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Group:       NewGroupRepository(db),
		GroupMember: NewGroupMemberRepository(db),
		Trust:       NewTrustRepository(db),
		Series:      NewSeriesRepository(db),
		Activity:    NewActivityRepository(db),
		Conflict:    NewConflictRepository(db),
		History:     NewHistoryRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Ping 检查数据库连接，供健康检查使用
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return wrapDBError(err, "获取连接池")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapDBError(err, "ping 数据库")
	}
	return nil
}

// Close 关闭底层连接池
func (r *Repositories) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
