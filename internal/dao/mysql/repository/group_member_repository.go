// Package repository 提供数据访问层的具体实现
// 本文件实现 GroupMemberRepository 接口，处理成员关系相关的数据库操作
package repository

import (
	"errors"
	"time"

	"karrot_server/internal/model"

	"gorm.io/gorm"
)

// groupMemberRepository GroupMemberRepository 接口的实现
type groupMemberRepository struct {
	db *gorm.DB // GORM 数据库实例
}

// NewGroupMemberRepository 创建 GroupMemberRepository 实例
func NewGroupMemberRepository(db *gorm.DB) GroupMemberRepository {
	return &groupMemberRepository{db: db}
}

// FindById 根据 ID 查找成员关系
func (r *groupMemberRepository) FindById(id uint) (*model.GroupMember, error) {
	var member model.GroupMember
	if err := r.db.First(&member, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询成员关系 id=%d", id)
	}
	return &member, nil
}

// FindByGroupAndUser 根据小组和用户查找成员关系
// 用于检查用户是否已在小组中
func (r *groupMemberRepository) FindByGroupAndUser(groupId, userId uint) (*model.GroupMember, error) {
	var member model.GroupMember
	if err := r.db.Where("group_id = ? AND user_id = ?", groupId, userId).First(&member).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询成员 group_id=%d user_id=%d", groupId, userId)
	}
	return &member, nil
}

// FindByIds 批量查找成员关系
func (r *groupMemberRepository) FindByIds(ids []uint) ([]model.GroupMember, error) {
	var members []model.GroupMember
	if len(ids) == 0 {
		return members, nil
	}
	if err := r.db.Where("id IN ?", ids).Order("id").Find(&members).Error; err != nil {
		return nil, wrapDBError(err, "批量查询成员关系")
	}
	return members, nil
}

// Create 添加成员
func (r *groupMemberRepository) Create(member *model.GroupMember) error {
	if err := r.db.Create(member).Error; err != nil {
		return wrapDBError(err, "创建成员关系")
	}
	return nil
}

// UpdateRoles 只更新角色字段
func (r *groupMemberRepository) UpdateRoles(member *model.GroupMember) error {
	if err := r.db.Model(member).Select("roles").Updates(member).Error; err != nil {
		return wrapDBErrorf(err, "更新成员角色 id=%d", member.ID)
	}
	return nil
}

// Delete 物理删除成员关系
func (r *groupMemberRepository) Delete(id uint) error {
	if err := r.db.Delete(&model.GroupMember{}, id).Error; err != nil {
		return wrapDBErrorf(err, "删除成员关系 id=%d", id)
	}
	return nil
}

// CountCreatedBefore 统计在 cutoff 及之前加入的成员数
func (r *groupMemberRepository) CountCreatedBefore(groupId uint, cutoff time.Time) (int64, error) {
	var n int64
	if err := r.db.Model(&model.GroupMember{}).
		Where("group_id = ? AND created_at <= ?", groupId, cutoff.UTC()).
		Count(&n).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计成员数 group_id=%d", groupId)
	}
	return n, nil
}

// EarliestCreatedAfter 返回 cutoff 之后最早加入的成员的加入时间
func (r *groupMemberRepository) EarliestCreatedAfter(groupId uint, cutoff time.Time) (*time.Time, error) {
	var member model.GroupMember
	err := r.db.Select("created_at").
		Where("group_id = ? AND created_at > ?", groupId, cutoff.UTC()).
		Order("created_at").
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "查询最早加入时间 group_id=%d", groupId)
	}
	return &member.CreatedAt, nil
}
