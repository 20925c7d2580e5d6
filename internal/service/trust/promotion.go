// Package trust 实现信任背书与编辑角色晋升
package trust

// EditorThreshold 计算晋升编辑所需的信任数
// activeMembers 为 24 小时前已加入的成员数，当天加入的成员不计入分母
func EditorThreshold(activeMembers int64, maxThreshold int) int {
	t := int(activeMembers / 2)
	if t < 1 {
		t = 1
	}
	if t > maxThreshold {
		t = maxThreshold
	}
	return t
}

// Decision 一次重新评估的结果
type Decision int

const (
	DecisionNone Decision = iota
	DecisionGrant
	DecisionRevoke
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionGrant:
		return "grant"
	case DecisionRevoke:
		return "revoke"
	}
	return "unknown"
}

// Evaluate 比较信任数与阈值，只在角色需要变化时返回 Grant/Revoke
func Evaluate(trustCount int64, threshold int, isEditor bool) Decision {
	reached := trustCount >= int64(threshold)
	switch {
	case reached && !isEditor:
		return DecisionGrant
	case !reached && isEditor:
		return DecisionRevoke
	}
	return DecisionNone
}
