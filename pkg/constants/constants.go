package constants

import "time"

const (
	CHANNEL_SIZE = 100 // 通道大小

	ROLE_MEMBER = "member" // 基础角色，所有成员都有
	ROLE_EDITOR = "editor" // 通过信任晋升获得的编辑角色

	GROUP_EDITOR_TRUST_MAX_THRESHOLD = 3 // 晋升编辑所需信任数的上限

	ACTIVITY_MATCH_TOLERANCE = 31 * time.Second // 小于该差值视为同一次活动

	VOTE_SCORE_MIN = -2 // 投票最低分
	VOTE_SCORE_MAX = 2  // 投票最高分
)
