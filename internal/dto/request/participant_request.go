package request

// JoinActivityRequest 报名活动请求
// 使用位置:
//   - internal/service/activity/service.go: AddParticipant
type JoinActivityRequest struct {
	UserId            uint `json:"user_id" validate:"required"`
	ActivityId        uint `json:"activity_id" validate:"required"`
	ParticipantTypeId uint `json:"participant_type_id" validate:"required"`
}
