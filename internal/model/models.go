// Package model 定义数据库实体模型
package model

// All 返回需要 AutoMigrate 的全部模型
func All() []any {
	return []any{
		&GroupInfo{},
		&Place{},
		&GroupMember{},
		&Trust{},
		&ActivitySeries{},
		&SeriesParticipantType{},
		&Activity{},
		&ParticipantType{},
		&ActivityParticipant{},
		&Case{},
		&Voting{},
		&Proposal{},
		&Vote{},
		&History{},
	}
}
