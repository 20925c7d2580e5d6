package model

import (
	"time"

	"gorm.io/gorm"
)

// DefaultActivityDuration 系列未设置时长时活动的默认时长
const DefaultActivityDuration = 30 * time.Minute

// ActivitySeries 按重复规则展开的活动系列
type ActivitySeries struct {
	gorm.Model
	PlaceId         uint      `gorm:"column:place_id;index;not null;comment:所属取货点"`
	Rule            string    `gorm:"column:rule;type:varchar(500);not null;comment:RFC5545 重复规则"`
	StartDate       time.Time `gorm:"column:start_date;not null;comment:系列开始时间"`
	DurationSeconds *int64    `gorm:"column:duration_seconds;comment:固定时长，为空表示无时长"`
	Description     string    `gorm:"column:description;type:TEXT;comment:描述"`

	Place            Place                   `gorm:"foreignKey:PlaceId"`
	ParticipantTypes []SeriesParticipantType `gorm:"foreignKey:SeriesId"`
}

func (ActivitySeries) TableName() string {
	return "activity_series"
}

// Duration 返回系列的固定时长，未设置时返回 false
func (s *ActivitySeries) Duration() (time.Duration, bool) {
	if s.DurationSeconds == nil {
		return 0, false
	}
	return time.Duration(*s.DurationSeconds) * time.Second, true
}

// SeriesParticipantType 系列上的参与者名额模板
type SeriesParticipantType struct {
	ID              uint   `gorm:"primaryKey"`
	SeriesId        uint   `gorm:"column:series_id;index;not null"`
	Role            string `gorm:"column:role;type:varchar(40);not null;comment:参与所需角色"`
	MaxParticipants *int   `gorm:"column:max_participants;comment:名额上限，为空表示不限"`
	Description     string `gorm:"column:description;type:varchar(500)"`
}

func (SeriesParticipantType) TableName() string {
	return "series_participant_type"
}

// Activity 一次具体的活动，SeriesId 为空表示单次活动或已脱离系列
type Activity struct {
	ID          uint      `gorm:"primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	PlaceId     uint      `gorm:"column:place_id;index;not null"`
	SeriesId    *uint     `gorm:"column:series_id;index;comment:来源系列"`
	StartAt     time.Time `gorm:"column:start_at;index;not null"`
	EndAt       time.Time `gorm:"column:end_at;not null"`
	HasDuration bool      `gorm:"column:has_duration;default:false"`
	Description string    `gorm:"column:description;type:TEXT"`
	IsDisabled  bool      `gorm:"column:is_disabled;default:false"`
	IsDone      bool      `gorm:"column:is_done;default:false"`

	ParticipantTypes []ParticipantType `gorm:"foreignKey:ActivityId"`
}

func (Activity) TableName() string {
	return "activity"
}

// ParticipantCount 当前所有名额中的参与人数
func (a *Activity) ParticipantCount() int {
	n := 0
	for _, pt := range a.ParticipantTypes {
		n += len(pt.Participants)
	}
	return n
}

// ParticipantType 活动上的参与者名额
type ParticipantType struct {
	ID                      uint   `gorm:"primaryKey"`
	ActivityId              uint   `gorm:"column:activity_id;index;not null"`
	SeriesParticipantTypeId *uint  `gorm:"column:series_participant_type_id;index;comment:来源模板"`
	Role                    string `gorm:"column:role;type:varchar(40);not null"`
	MaxParticipants         *int   `gorm:"column:max_participants"`
	Description             string `gorm:"column:description;type:varchar(500)"`

	Participants []ActivityParticipant `gorm:"foreignKey:ParticipantTypeId"`
}

func (ParticipantType) TableName() string {
	return "participant_type"
}

// ActivityParticipant 参加某个名额的用户
type ActivityParticipant struct {
	ID                uint      `gorm:"primaryKey"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	ActivityId        uint      `gorm:"column:activity_id;not null;uniqueIndex:idx_participant_activity_user"`
	ParticipantTypeId uint      `gorm:"column:participant_type_id;index;not null"`
	UserId            uint      `gorm:"column:user_id;not null;uniqueIndex:idx_participant_activity_user"`
}

func (ActivityParticipant) TableName() string {
	return "activity_participant"
}
