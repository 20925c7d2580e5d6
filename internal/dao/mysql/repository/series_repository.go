// Package repository 提供数据访问层的具体实现
// 本文件实现 SeriesRepository 接口，处理活动系列相关的数据库操作
package repository

import (
	"karrot_server/internal/model"

	"gorm.io/gorm"
)

// seriesRepository SeriesRepository 接口的实现
type seriesRepository struct {
	db *gorm.DB
}

// NewSeriesRepository 创建 SeriesRepository 实例
func NewSeriesRepository(db *gorm.DB) SeriesRepository {
	return &seriesRepository{db: db}
}

// FindById 查找系列，预加载取货点、小组和名额模板
func (r *seriesRepository) FindById(id uint) (*model.ActivitySeries, error) {
	var series model.ActivitySeries
	if err := r.db.
		Preload("Place.Group").
		Preload("ParticipantTypes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&series, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询活动系列 id=%d", id)
	}
	return &series, nil
}

// FindAllIds 返回全部系列 ID
func (r *seriesRepository) FindAllIds() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&model.ActivitySeries{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, wrapDBError(err, "查询全部活动系列")
	}
	return ids, nil
}

// Create 创建系列，名额模板随关联一起写入
func (r *seriesRepository) Create(series *model.ActivitySeries) error {
	series.StartDate = series.StartDate.UTC()
	if err := r.db.Omit("Place").Create(series).Error; err != nil {
		return wrapDBError(err, "创建活动系列")
	}
	return nil
}

// Update 只更新系列自身字段
func (r *seriesRepository) Update(series *model.ActivitySeries) error {
	series.StartDate = series.StartDate.UTC()
	if err := r.db.Model(series).
		Select("rule", "start_date", "duration_seconds", "description").
		Updates(series).Error; err != nil {
		return wrapDBErrorf(err, "更新活动系列 id=%d", series.ID)
	}
	return nil
}

// SaveParticipantType 新增或更新名额模板
func (r *seriesRepository) SaveParticipantType(pt *model.SeriesParticipantType) error {
	if err := r.db.Save(pt).Error; err != nil {
		return wrapDBErrorf(err, "保存名额模板 series_id=%d", pt.SeriesId)
	}
	return nil
}

// DeleteParticipantType 删除名额模板
func (r *seriesRepository) DeleteParticipantType(id uint) error {
	if err := r.db.Delete(&model.SeriesParticipantType{}, id).Error; err != nil {
		return wrapDBErrorf(err, "删除名额模板 id=%d", id)
	}
	return nil
}

// Delete 删除系列及其名额模板
// 系列使用软删除，名额模板物理删除
func (r *seriesRepository) Delete(id uint) error {
	if err := r.db.Where("series_id = ?", id).Delete(&model.SeriesParticipantType{}).Error; err != nil {
		return wrapDBErrorf(err, "删除名额模板 series_id=%d", id)
	}
	if err := r.db.Delete(&model.ActivitySeries{}, id).Error; err != nil {
		return wrapDBErrorf(err, "删除活动系列 id=%d", id)
	}
	return nil
}
