package model

import (
	"encoding/json"
	"time"
)

// HistoryType 历史事件类型
type HistoryType string

const (
	HistoryMemberBecameEditor HistoryType = "MEMBER_BECAME_EDITOR"
	HistoryUserLostEditorRole HistoryType = "USER_LOST_EDITOR_ROLE"
	HistoryMemberRemoved      HistoryType = "MEMBER_REMOVED"
	HistoryGroupJoin          HistoryType = "GROUP_JOIN"
	HistoryGroupLeave         HistoryType = "GROUP_LEAVE"
	HistoryCaseCreated        HistoryType = "CONFLICT_CASE_CREATED"
	HistoryVotingEnded        HistoryType = "CONFLICT_VOTING_ENDED"
	HistoryCaseCancelled      HistoryType = "CONFLICT_CASE_CANCELLED"
	HistorySeriesCreated      HistoryType = "SERIES_CREATE"
	HistorySeriesModified     HistoryType = "SERIES_MODIFY"
	HistorySeriesDeleted      HistoryType = "SERIES_DELETE"
	HistoryActivityDetached   HistoryType = "ACTIVITY_DETACHED"
)

// History 小组历史记录
type History struct {
	ID             uint        `gorm:"primaryKey"`
	CreatedAt      time.Time   `gorm:"column:created_at;index"`
	Typus          HistoryType `gorm:"column:typus;type:varchar(40);not null;index"`
	GroupId        uint        `gorm:"column:group_id;index;not null"`
	UserId         *uint       `gorm:"column:user_id;comment:操作者，系统触发时为空"`
	AffectedUserId *uint       `gorm:"column:affected_user_id"`
	ObjectId       *uint       `gorm:"column:object_id;comment:相关对象ID"`
	Payload        string      `gorm:"column:payload;type:TEXT;comment:JSON 附加信息"`
}

func (History) TableName() string {
	return "history"
}

// SetPayload 以 JSON 写入附加信息
func (h *History) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Payload = string(data)
	return nil
}
