package request

// CreateCaseRequest 发起冲突议题请求
// 使用位置:
//   - internal/service/conflict/service.go: CreateCase
type CreateCaseRequest struct {
	GroupId        uint     `json:"group_id" validate:"required"`
	CreatedById    uint     `json:"created_by_id" validate:"required"`
	AffectedUserId uint     `json:"affected_user_id" validate:"required,nefield=CreatedById"`
	Topic          string   `json:"topic" validate:"required"`
	CustomOptions  []string `json:"custom_options" validate:"omitempty,dive,required"`
}

// ProposalScore 对单个提案的打分
type ProposalScore struct {
	ProposalId uint `json:"proposal_id" validate:"required"`
	Score      int  `json:"score" validate:"min=-2,max=2"`
}

// SaveVotesRequest 提交投票请求，会替换该用户在本轮的全部投票
// 使用位置:
//   - internal/service/conflict/service.go: SaveVotes
type SaveVotesRequest struct {
	VotingId uint            `json:"voting_id" validate:"required"`
	UserId   uint            `json:"user_id" validate:"required"`
	Scores   []ProposalScore `json:"scores" validate:"required,min=1,dive"`
}
