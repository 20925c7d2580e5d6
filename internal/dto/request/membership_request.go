package request

// JoinGroupRequest 加入小组请求
// 使用位置:
//   - internal/service/group/service.go: JoinGroup
type JoinGroupRequest struct {
	GroupId uint `json:"group_id" validate:"required"`
	UserId  uint `json:"user_id" validate:"required"`
}

// LeaveGroupRequest 退出小组请求
// 使用位置:
//   - internal/service/group/service.go: LeaveGroup
type LeaveGroupRequest struct {
	GroupId uint `json:"group_id" validate:"required"`
	UserId  uint `json:"user_id" validate:"required"`
}

// TrustRequest 给予或撤销信任请求
// 使用位置:
//   - internal/service/trust/service.go: GiveTrust, RevokeTrust
type TrustRequest struct {
	GroupId   uint `json:"group_id" validate:"required"`
	GivenById uint `json:"given_by_id" validate:"required"`
	TrusteeId uint `json:"trustee_id" validate:"required"`
}

// CreateGroupRequest 创建小组请求
// 使用位置:
//   - internal/service/group/service.go: CreateGroup
type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required,max=80"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

// CreatePlaceRequest 创建取货点请求，Timezone 为空时沿用小组时区
// 使用位置:
//   - internal/service/group/service.go: CreatePlace
type CreatePlaceRequest struct {
	GroupId  uint   `json:"group_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=80"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}
