// Package repository 提供数据访问层的具体实现
// 本文件实现 TrustRepository 接口，处理信任背书相关的数据库操作
package repository

import (
	"karrot_server/internal/model"

	"gorm.io/gorm"
)

// trustRepository TrustRepository 接口的实现
type trustRepository struct {
	db *gorm.DB
}

// NewTrustRepository 创建 TrustRepository 实例
func NewTrustRepository(db *gorm.DB) TrustRepository {
	return &trustRepository{db: db}
}

// Create 创建信任，唯一键冲突映射为 CodeValidation
func (r *trustRepository) Create(trust *model.Trust) error {
	if err := r.db.Create(trust).Error; err != nil {
		return wrapDBErrorf(err, "创建信任 membership_id=%d given_by=%d", trust.MembershipId, trust.GivenById)
	}
	return nil
}

// Exists 判断信任是否已存在
func (r *trustRepository) Exists(membershipId, givenById uint) (bool, error) {
	var n int64
	if err := r.db.Model(&model.Trust{}).
		Where("membership_id = ? AND given_by_id = ?", membershipId, givenById).
		Count(&n).Error; err != nil {
		return false, wrapDBError(err, "查询信任")
	}
	return n > 0, nil
}

// Delete 删除一条信任
func (r *trustRepository) Delete(membershipId, givenById uint) (int64, error) {
	res := r.db.Where("membership_id = ? AND given_by_id = ?", membershipId, givenById).Delete(&model.Trust{})
	if res.Error != nil {
		return 0, wrapDBError(res.Error, "删除信任")
	}
	return res.RowsAffected, nil
}

// CountByMembership 统计成员获得的信任数
func (r *trustRepository) CountByMembership(membershipId uint) (int64, error) {
	var n int64
	if err := r.db.Model(&model.Trust{}).Where("membership_id = ?", membershipId).Count(&n).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计信任 membership_id=%d", membershipId)
	}
	return n, nil
}

// DeleteByMembership 删除成员获得的全部信任
func (r *trustRepository) DeleteByMembership(membershipId uint) error {
	if err := r.db.Where("membership_id = ?", membershipId).Delete(&model.Trust{}).Error; err != nil {
		return wrapDBErrorf(err, "删除成员获得的信任 membership_id=%d", membershipId)
	}
	return nil
}

// FindMembershipIdsTrustedBy 查找用户在小组内背书过的成员关系
func (r *trustRepository) FindMembershipIdsTrustedBy(groupId, userId uint) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&model.Trust{}).
		Joins("JOIN group_member ON group_member.id = trust.membership_id").
		Where("group_member.group_id = ? AND trust.given_by_id = ?", groupId, userId).
		Order("trust.membership_id").
		Pluck("trust.membership_id", &ids).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户给出的信任 group_id=%d user_id=%d", groupId, userId)
	}
	return ids, nil
}

// DeleteGivenBy 删除用户对指定成员关系的背书
func (r *trustRepository) DeleteGivenBy(membershipIds []uint, userId uint) error {
	if len(membershipIds) == 0 {
		return nil
	}
	if err := r.db.Where("membership_id IN ? AND given_by_id = ?", membershipIds, userId).Delete(&model.Trust{}).Error; err != nil {
		return wrapDBErrorf(err, "删除用户给出的信任 user_id=%d", userId)
	}
	return nil
}
