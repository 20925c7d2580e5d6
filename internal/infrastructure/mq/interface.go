// Package mq 负责领域事件的发布
// 治理状态变化（晋升编辑、移除成员、投票结束等）以事件形式写入 Kafka，
// 由通知、邮件等下游服务消费
package mq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"karrot_server/pkg/util/snowflake"
)

// EventType 领域事件类型
type EventType string

const (
	EventUserBecameEditor  EventType = "user_became_editor"
	EventUserLostEditor    EventType = "user_lost_editor_role"
	EventMemberRemoved     EventType = "member_removed"
	EventVotingEnded       EventType = "voting_ended"
	EventNewVoting         EventType = "new_voting"
	EventCaseCancelled     EventType = "case_cancelled"
	EventCaseCreated       EventType = "case_created"
	EventSeriesReconciled  EventType = "series_reconciled"
	EventMemberJoined      EventType = "member_joined"
	EventMemberLeft        EventType = "member_left"
	EventParticipantJoined EventType = "participant_joined"
)

// Event 领域事件
type Event struct {
	ID         int64          `json:"id,string"`
	Type       EventType      `json:"type"`
	GroupId    uint           `json:"groupId"`
	UserId     uint           `json:"userId,omitempty"`
	ObjectId   uint           `json:"objectId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// NewEvent 创建带雪花 ID 的事件
func NewEvent(typ EventType, groupId, userId, objectId uint, at time.Time) Event {
	return Event{
		ID:         snowflake.GenerateID(),
		Type:       typ,
		GroupId:    groupId,
		UserId:     userId,
		ObjectId:   objectId,
		OccurredAt: at.UTC(),
	}
}

// Key 分区键，同一小组的事件落在同一分区以保持顺序
func (e Event) Key() []byte {
	return []byte(strconv.FormatUint(uint64(e.GroupId), 10))
}

// Encode 序列化为 JSON
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher 事件发布接口
// 业务层在事务提交后调用，发布失败只记录日志，不回滚已提交的状态
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}
