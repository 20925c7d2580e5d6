// Package conflict 实现冲突议题的投票结算与议题管理
package conflict

import (
	"karrot_server/internal/model"
	"karrot_server/pkg/errorx"
)

// OutcomeKind 一轮投票的结算结果
type OutcomeKind int

const (
	// OutcomeCancelled 无人投票，议题取消
	OutcomeCancelled OutcomeKind = iota + 1
	// OutcomeDecided 有唯一胜出的终结提案，议题结束
	OutcomeDecided
	// OutcomeFurtherDiscussion 继续讨论，开启新一轮投票
	OutcomeFurtherDiscussion
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeDecided:
		return "decided"
	case OutcomeFurtherDiscussion:
		return "further_discussion"
	}
	return "unknown"
}

// Outcome 结算结果及需要执行的后续动作
// Decide 只计算，不修改任何状态，由调用方在同一事务中执行这些动作
type Outcome struct {
	Kind       OutcomeKind
	Scores     map[uint]int // 提案 ID -> 总分
	VoteCount  int
	AcceptedId *uint // 被采纳的提案，取消时为空
	Tie        bool  // 最高分出现并列

	// 后续动作
	CaseStatus        model.CaseStatus // 议题的新状态
	RemoveUserId      *uint            // 需要移出小组的用户
	SpawnContinuation bool             // 是否开启新一轮投票
}

// Decide 结算一轮投票
//  1. 累加每个提案的得分
//  2. 一票都没有：议题取消
//  3. 最高分并列：继续讨论
//  4. 唯一最高分：按提案类型决定
func Decide(v *model.Voting) (Outcome, error) {
	if len(v.Proposals) == 0 {
		return Outcome{}, errorx.Invariant("投票 %d 没有任何提案", v.ID)
	}

	out := Outcome{Scores: make(map[uint]int, len(v.Proposals))}
	var winner *model.Proposal
	best, atBest := 0, 0
	for i := range v.Proposals {
		p := &v.Proposals[i]
		sum := 0
		for _, vote := range p.Votes {
			sum += vote.Score
		}
		out.Scores[p.ID] = sum
		out.VoteCount += len(p.Votes)

		switch {
		case winner == nil || sum > best:
			winner, best, atBest = p, sum, 1
		case sum == best:
			atBest++
		}
	}

	if out.VoteCount == 0 {
		out.Kind = OutcomeCancelled
		out.CaseStatus = model.CaseCancelled
		return out, nil
	}
	if atBest > 1 {
		out.Tie = true
		furtherDiscussion(&out, v)
		return out, nil
	}

	switch winner.Type {
	case model.ProposalRemoveUser:
		if winner.AffectedUserId == nil {
			return Outcome{}, errorx.Invariant("移除提案 %d 缺少目标用户", winner.ID)
		}
		out.Kind = OutcomeDecided
		out.CaseStatus = model.CaseDecided
		out.AcceptedId = &winner.ID
		uid := *winner.AffectedUserId
		out.RemoveUserId = &uid
	case model.ProposalNoChange, model.ProposalCustom:
		out.Kind = OutcomeDecided
		out.CaseStatus = model.CaseDecided
		out.AcceptedId = &winner.ID
	case model.ProposalFurtherDiscussion:
		furtherDiscussion(&out, v)
	default:
		return Outcome{}, errorx.Invariant("未知的提案类型 %q", winner.Type)
	}
	return out, nil
}

// furtherDiscussion 继续讨论：采纳本轮的继续讨论提案（如有），议题保持进行中
func furtherDiscussion(out *Outcome, v *model.Voting) {
	out.Kind = OutcomeFurtherDiscussion
	out.CaseStatus = model.CaseOngoing
	out.SpawnContinuation = true
	for i := range v.Proposals {
		if v.Proposals[i].Type == model.ProposalFurtherDiscussion {
			out.AcceptedId = &v.Proposals[i].ID
			return
		}
	}
}

// cloneProposals 复制上一轮的提案，用于新一轮投票
func cloneProposals(src []model.Proposal) []model.Proposal {
	out := make([]model.Proposal, 0, len(src))
	for _, p := range src {
		clone := model.Proposal{Type: p.Type, Message: p.Message}
		if p.AffectedUserId != nil {
			uid := *p.AffectedUserId
			clone.AffectedUserId = &uid
		}
		out = append(out, clone)
	}
	return out
}

// initialProposals 新议题的默认提案：继续讨论、维持现状、移出小组，以及自定义提案
func initialProposals(affectedUserId uint, customOptions []string) []model.Proposal {
	uid := affectedUserId
	proposals := []model.Proposal{
		{Type: model.ProposalFurtherDiscussion},
		{Type: model.ProposalNoChange},
		{Type: model.ProposalRemoveUser, AffectedUserId: &uid},
	}
	for _, msg := range customOptions {
		proposals = append(proposals, model.Proposal{Type: model.ProposalCustom, Message: msg})
	}
	return proposals
}
