// Package repository 提供数据访问层的具体实现
// 本文件实现 GroupRepository 接口，处理小组和取货点相关的数据库操作
package repository

import (
	"karrot_server/internal/model"

	"gorm.io/gorm"
)

// groupRepository GroupRepository 接口的实现
type groupRepository struct {
	db *gorm.DB // GORM 数据库实例
}

// NewGroupRepository 创建 GroupRepository 实例
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

// FindById 根据 ID 查找小组
func (r *groupRepository) FindById(id uint) (*model.GroupInfo, error) {
	var group model.GroupInfo
	if err := r.db.First(&group, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询小组 id=%d", id)
	}
	return &group, nil
}

// Create 创建小组
func (r *groupRepository) Create(group *model.GroupInfo) error {
	if err := r.db.Create(group).Error; err != nil {
		return wrapDBError(err, "创建小组")
	}
	return nil
}

// FindPlaceById 查找取货点，预加载小组用于回落时区
func (r *groupRepository) FindPlaceById(id uint) (*model.Place, error) {
	var place model.Place
	if err := r.db.Preload("Group").First(&place, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询取货点 id=%d", id)
	}
	return &place, nil
}

// CreatePlace 创建取货点
func (r *groupRepository) CreatePlace(place *model.Place) error {
	if err := r.db.Create(place).Error; err != nil {
		return wrapDBError(err, "创建取货点")
	}
	return nil
}
