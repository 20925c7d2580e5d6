// Package repository 提供数据访问层的具体实现
// 本文件实现 HistoryRepository 接口
package repository

import (
	"karrot_server/internal/model"

	"gorm.io/gorm"
)

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建 HistoryRepository 实例
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Create 写入一条历史
func (r *historyRepository) Create(h *model.History) error {
	if err := r.db.Create(h).Error; err != nil {
		return wrapDBErrorf(err, "写入历史 typus=%s", h.Typus)
	}
	return nil
}

// FindByGroup 按时间顺序列出小组历史
func (r *historyRepository) FindByGroup(groupId uint) ([]model.History, error) {
	var list []model.History
	if err := r.db.Where("group_id = ?", groupId).Order("id").Find(&list).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询历史 group_id=%d", groupId)
	}
	return list, nil
}
