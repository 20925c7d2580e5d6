package model

import (
	"time"

	"gorm.io/gorm"
)

// CaseStatus 议题状态
type CaseStatus string

const (
	CaseOngoing   CaseStatus = "ongoing"
	CaseDecided   CaseStatus = "decided"
	CaseCancelled CaseStatus = "cancelled"
)

// ProposalType 提案类型，封闭枚举
type ProposalType string

const (
	ProposalRemoveUser        ProposalType = "remove_user"
	ProposalFurtherDiscussion ProposalType = "further_discussion"
	ProposalNoChange          ProposalType = "no_change"
	ProposalCustom            ProposalType = "custom"
)

// Valid 是否为已知提案类型
func (t ProposalType) Valid() bool {
	switch t {
	case ProposalRemoveUser, ProposalFurtherDiscussion, ProposalNoChange, ProposalCustom:
		return true
	}
	return false
}

// Case 冲突处理议题，针对小组中的一位成员
// 同一 (group, affected user) 同时只能有一个进行中的议题
type Case struct {
	gorm.Model
	GroupId         uint       `gorm:"column:group_id;index:idx_case_group_affected;not null"`
	CreatedById     uint       `gorm:"column:created_by_id;not null"`
	AffectedUserId  uint       `gorm:"column:affected_user_id;index:idx_case_group_affected;not null"`
	Topic           string     `gorm:"column:topic;type:TEXT;not null"`
	Status          CaseStatus `gorm:"column:status;type:varchar(20);not null;default:ongoing;index"`
	StatusChangedAt *time.Time `gorm:"column:status_changed_at"`

	Votings []Voting `gorm:"foreignKey:CaseId"`
}

func (Case) TableName() string {
	return "conflict_case"
}

// Voting 议题中的一轮投票，只有最新一轮处于活动状态
type Voting struct {
	gorm.Model
	CaseId             uint       `gorm:"column:case_id;index;not null"`
	ExpiresAt          time.Time  `gorm:"column:expires_at;index;not null"`
	AcceptedProposalId *uint      `gorm:"column:accepted_proposal_id"`
	DecidedAt          *time.Time `gorm:"column:decided_at;index;comment:为空表示仍在进行"`

	Proposals []Proposal `gorm:"foreignKey:VotingId"`
}

func (Voting) TableName() string {
	return "conflict_voting"
}

// IsOngoing 本轮投票尚未结算
func (v *Voting) IsOngoing() bool {
	return v.DecidedAt == nil
}

// Proposal 投票中的一个可选结果
type Proposal struct {
	ID             uint         `gorm:"primaryKey"`
	CreatedAt      time.Time    `gorm:"column:created_at"`
	VotingId       uint         `gorm:"column:voting_id;index;not null"`
	Type           ProposalType `gorm:"column:type;type:varchar(30);not null"`
	AffectedUserId *uint        `gorm:"column:affected_user_id;comment:remove_user 提案的目标用户"`
	Message        string       `gorm:"column:message;type:TEXT"`
	SumScore       *int         `gorm:"column:sum_score;comment:结算后写入的总分"`

	Votes []Vote `gorm:"foreignKey:ProposalId"`
}

func (Proposal) TableName() string {
	return "conflict_proposal"
}

// Vote 用户对一个提案的打分，(user, proposal) 唯一
// 修改投票时先删除再重建，CreatedAt 总是反映最新意图
type Vote struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	ProposalId uint      `gorm:"column:proposal_id;not null;uniqueIndex:idx_vote_proposal_user"`
	UserId     uint      `gorm:"column:user_id;not null;uniqueIndex:idx_vote_proposal_user"`
	Score      int       `gorm:"column:score;not null"`
}

func (Vote) TableName() string {
	return "conflict_vote"
}
