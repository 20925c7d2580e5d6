package request

import "time"

// SeriesParticipantTypeRequest 系列名额模板
// Id 为 0 表示新增；更新请求中未出现的已有模板会被删除
type SeriesParticipantTypeRequest struct {
	Id              uint   `json:"id"`
	Role            string `json:"role" validate:"required,max=40"`
	MaxParticipants *int   `json:"max_participants" validate:"omitempty,gte=0"`
	Description     string `json:"description" validate:"max=500"`
}

// CreateSeriesRequest 创建活动系列请求
// 使用位置:
//   - internal/service/activity/service.go: CreateSeries
type CreateSeriesRequest struct {
	UserId           uint                           `json:"user_id" validate:"required"`
	PlaceId          uint                           `json:"place_id" validate:"required"`
	Rule             string                         `json:"rule" validate:"required,max=500"`
	StartDate        time.Time                      `json:"start_date" validate:"required"`
	DurationSeconds  *int64                         `json:"duration_seconds" validate:"omitempty,gt=0"`
	Description      string                         `json:"description"`
	ParticipantTypes []SeriesParticipantTypeRequest `json:"participant_types" validate:"dive"`
}

// UpdateSeriesRequest 修改活动系列请求，指针字段为空表示不修改
// DurationSeconds 为 0 表示清除固定时长；ParticipantTypes 为 nil 表示不修改名额模板
// 使用位置:
//   - internal/service/activity/service.go: UpdateSeries
type UpdateSeriesRequest struct {
	UserId           uint                           `json:"user_id" validate:"required"`
	SeriesId         uint                           `json:"series_id" validate:"required"`
	Rule             *string                        `json:"rule" validate:"omitempty,min=1,max=500"`
	StartDate        *time.Time                     `json:"start_date"`
	DurationSeconds  *int64                         `json:"duration_seconds" validate:"omitempty,gte=0"`
	Description      *string                        `json:"description"`
	ParticipantTypes []SeriesParticipantTypeRequest `json:"participant_types" validate:"omitempty,dive"`
}
