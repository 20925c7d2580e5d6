// Package repository 提供数据访问层的具体实现
// 本文件实现 ActivityRepository 接口，处理活动、名额与参与者的数据库操作
package repository

import (
	"time"

	"karrot_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activityRepository ActivityRepository 接口的实现
type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建 ActivityRepository 实例
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

// withParticipants 预加载名额和参与者，名额按 ID 排序
func withParticipants(db *gorm.DB) *gorm.DB {
	return db.
		Preload("ParticipantTypes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("ParticipantTypes.Participants")
}

// FindById 查找活动
func (r *activityRepository) FindById(id uint) (*model.Activity, error) {
	var activity model.Activity
	if err := withParticipants(r.db).First(&activity, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询活动 id=%d", id)
	}
	return &activity, nil
}

// ListUpcomingBySeries 按开始时间升序列出系列中尚未开始的活动
// 匹配算法要求输入有序，这里的排序是其前置条件
func (r *activityRepository) ListUpcomingBySeries(seriesId uint, after time.Time) ([]model.Activity, error) {
	var list []model.Activity
	if err := withParticipants(r.db).
		Where("series_id = ? AND start_at > ?", seriesId, after.UTC()).
		Order("start_at, id").
		Find(&list).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询系列活动 series_id=%d", seriesId)
	}
	return list, nil
}

// Create 创建活动，名额随关联一起写入
func (r *activityRepository) Create(activity *model.Activity) error {
	activity.StartAt = activity.StartAt.UTC()
	activity.EndAt = activity.EndAt.UTC()
	if err := r.db.Create(activity).Error; err != nil {
		return wrapDBError(err, "创建活动")
	}
	return nil
}

// Delete 删除活动及其名额、参与者
func (r *activityRepository) Delete(id uint) error {
	if err := r.db.Where("activity_id = ?", id).Delete(&model.ActivityParticipant{}).Error; err != nil {
		return wrapDBErrorf(err, "删除活动参与者 activity_id=%d", id)
	}
	if err := r.db.Where("activity_id = ?", id).Delete(&model.ParticipantType{}).Error; err != nil {
		return wrapDBErrorf(err, "删除活动名额 activity_id=%d", id)
	}
	if err := r.db.Delete(&model.Activity{}, id).Error; err != nil {
		return wrapDBErrorf(err, "删除活动 id=%d", id)
	}
	return nil
}

// Detach 使活动脱离系列，保留为单次活动
func (r *activityRepository) Detach(id uint) error {
	if err := r.db.Model(&model.Activity{}).Where("id = ?", id).Update("series_id", nil).Error; err != nil {
		return wrapDBErrorf(err, "活动脱离系列 id=%d", id)
	}
	return nil
}

// DetachBySeries 使系列下的全部活动脱离系列，系列删除前调用
func (r *activityRepository) DetachBySeries(seriesId uint) (int64, error) {
	res := r.db.Model(&model.Activity{}).Where("series_id = ?", seriesId).Update("series_id", nil)
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "活动脱离系列 series_id=%d", seriesId)
	}
	return res.RowsAffected, nil
}

// UpdateParticipantType 更新活动名额
func (r *activityRepository) UpdateParticipantType(pt *model.ParticipantType) error {
	if err := r.db.Model(pt).
		Select("role", "max_participants", "description").
		Updates(pt).Error; err != nil {
		return wrapDBErrorf(err, "更新活动名额 id=%d", pt.ID)
	}
	return nil
}

// CreateParticipantType 为活动新增名额
func (r *activityRepository) CreateParticipantType(pt *model.ParticipantType) error {
	if err := r.db.Create(pt).Error; err != nil {
		return wrapDBErrorf(err, "创建活动名额 activity_id=%d", pt.ActivityId)
	}
	return nil
}

// DeleteParticipantType 删除活动名额
func (r *activityRepository) DeleteParticipantType(id uint) error {
	if err := r.db.Delete(&model.ParticipantType{}, id).Error; err != nil {
		return wrapDBErrorf(err, "删除活动名额 id=%d", id)
	}
	return nil
}

// UnlinkParticipantType 使名额脱离系列模板，之后模板的修改不再影响它
func (r *activityRepository) UnlinkParticipantType(id uint) error {
	if err := r.db.Model(&model.ParticipantType{}).Where("id = ?", id).
		Update("series_participant_type_id", nil).Error; err != nil {
		return wrapDBErrorf(err, "名额脱离模板 id=%d", id)
	}
	return nil
}

// UpdateSchedule 更新活动结束时间、时长标记和描述
func (r *activityRepository) UpdateSchedule(activity *model.Activity) error {
	activity.EndAt = activity.EndAt.UTC()
	if err := r.db.Model(activity).
		Select("end_at", "has_duration", "description").
		Updates(activity).Error; err != nil {
		return wrapDBErrorf(err, "更新活动时间 id=%d", activity.ID)
	}
	return nil
}

// LockParticipantType 行锁读取名额，保证容量检查与插入之间不被并发插入打断
func (r *activityRepository) LockParticipantType(id uint) (*model.ParticipantType, error) {
	var pt model.ParticipantType
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pt, id).Error; err != nil {
		return nil, wrapDBErrorf(err, "锁定活动名额 id=%d", id)
	}
	return &pt, nil
}

// CountParticipants 统计名额已参加人数
func (r *activityRepository) CountParticipants(participantTypeId uint) (int64, error) {
	var n int64
	if err := r.db.Model(&model.ActivityParticipant{}).
		Where("participant_type_id = ?", participantTypeId).
		Count(&n).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计参与者 participant_type_id=%d", participantTypeId)
	}
	return n, nil
}

// FindParticipant 查找用户在活动中的参与记录
func (r *activityRepository) FindParticipant(activityId, userId uint) (*model.ActivityParticipant, error) {
	var p model.ActivityParticipant
	if err := r.db.Where("activity_id = ? AND user_id = ?", activityId, userId).First(&p).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询参与者 activity_id=%d user_id=%d", activityId, userId)
	}
	return &p, nil
}

// CreateParticipant 添加参与者
func (r *activityRepository) CreateParticipant(p *model.ActivityParticipant) error {
	if err := r.db.Create(p).Error; err != nil {
		return wrapDBErrorf(err, "添加参与者 activity_id=%d user_id=%d", p.ActivityId, p.UserId)
	}
	return nil
}

// DeleteParticipant 删除参与者
func (r *activityRepository) DeleteParticipant(activityId, userId uint) (int64, error) {
	res := r.db.Where("activity_id = ? AND user_id = ?", activityId, userId).Delete(&model.ActivityParticipant{})
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "删除参与者 activity_id=%d user_id=%d", activityId, userId)
	}
	return res.RowsAffected, nil
}

// DeleteUpcomingParticipations 删除用户在小组内尚未开始活动中的参与记录
func (r *activityRepository) DeleteUpcomingParticipations(groupId, userId uint, now time.Time) error {
	upcoming := r.db.Model(&model.Activity{}).
		Select("activity.id").
		Joins("JOIN place ON place.id = activity.place_id").
		Where("place.group_id = ? AND activity.start_at > ?", groupId, now.UTC())
	if err := r.db.Where("user_id = ? AND activity_id IN (?)", userId, upcoming).
		Delete(&model.ActivityParticipant{}).Error; err != nil {
		return wrapDBErrorf(err, "删除未来活动参与 group_id=%d user_id=%d", groupId, userId)
	}
	return nil
}
