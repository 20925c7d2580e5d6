package model

import (
	"time"

	"karrot_server/pkg/constants"
)

// GroupMember 小组成员关系
// 退组时直接物理删除，重新加入会生成新记录
type GroupMember struct {
	ID                uint       `gorm:"primaryKey"`
	CreatedAt         time.Time  `gorm:"column:created_at;index"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
	GroupId           uint       `gorm:"column:group_id;not null;uniqueIndex:idx_member_group_user;comment:小组ID"`
	UserId            uint       `gorm:"column:user_id;not null;uniqueIndex:idx_member_group_user;index;comment:用户ID"`
	Roles             []string   `gorm:"column:roles;serializer:json;comment:角色集合，总是包含 member"`
	NotificationTypes []string   `gorm:"column:notification_types;serializer:json;comment:通知偏好"`
	LastSeenAt        time.Time  `gorm:"column:lastseen_at;comment:最后活跃时间"`
	InactiveAt        *time.Time `gorm:"column:inactive_at;comment:被标记为不活跃的时间"`
}

func (GroupMember) TableName() string {
	return "group_member"
}

// HasRole 判断成员是否拥有指定角色
func (m *GroupMember) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsEditor 是否为编辑
func (m *GroupMember) IsEditor() bool {
	return m.HasRole(constants.ROLE_EDITOR)
}

// AddRole 添加角色，已存在时返回 false
func (m *GroupMember) AddRole(role string) bool {
	if m.HasRole(role) {
		return false
	}
	m.Roles = append(m.Roles, role)
	return true
}

// RemoveRole 移除角色，基础角色不可移除
func (m *GroupMember) RemoveRole(role string) bool {
	if role == constants.ROLE_MEMBER || !m.HasRole(role) {
		return false
	}
	roles := make([]string, 0, len(m.Roles)-1)
	for _, r := range m.Roles {
		if r != role {
			roles = append(roles, r)
		}
	}
	m.Roles = roles
	return true
}

// Trust 成员之间的信任背书，(membership, given_by) 唯一
type Trust struct {
	ID           uint      `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	MembershipId uint      `gorm:"column:membership_id;not null;uniqueIndex:idx_trust_membership_giver;comment:被信任的成员关系"`
	GivenById    uint      `gorm:"column:given_by_id;not null;uniqueIndex:idx_trust_membership_giver;index;comment:给予信任的用户"`
}

func (Trust) TableName() string {
	return "trust"
}
