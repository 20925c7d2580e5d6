package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/dbtest"
	"karrot_server/internal/dao/mysql/repository"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/pkg/constants"
	"karrot_server/pkg/errorx"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeRemover 记录移除调用并删除成员关系，fail 中的用户返回错误
type fakeRemover struct {
	calls     []uint
	committed []uint
	fail      map[uint]error
}

func (f *fakeRemover) RemoveMemberTx(txRepos *repository.Repositories, groupId, userId uint, at time.Time) ([]mq.Event, error) {
	f.calls = append(f.calls, userId)
	if err := f.fail[userId]; err != nil {
		return nil, err
	}
	member, err := txRepos.GroupMember.FindByGroupAndUser(groupId, userId)
	if err != nil {
		return nil, err
	}
	return nil, txRepos.GroupMember.Delete(member.ID)
}

func (f *fakeRemover) MemberRemoved(_ context.Context, groupId uint) {
	f.committed = append(f.committed, groupId)
}

type fixture struct {
	svc     *conflictService
	repos   *repository.Repositories
	pub     *mq.MemoryPublisher
	remover *fakeRemover
	groupId uint
}

const (
	editorA  uint = 1
	editorB  uint = 2
	editorC  uint = 3
	affected uint = 4
	newbie   uint = 5
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, db := dbtest.Open(t)
	group := &model.GroupInfo{Name: "g", Timezone: "UTC"}
	dbtest.MustCreate(t, db, group)
	editorRoles := []string{constants.ROLE_MEMBER, constants.ROLE_EDITOR}
	for _, uid := range []uint{editorA, editorB, editorC, affected} {
		dbtest.MustCreate(t, db, &model.GroupMember{GroupId: group.ID, UserId: uid, Roles: editorRoles})
	}
	dbtest.MustCreate(t, db, &model.GroupMember{GroupId: group.ID, UserId: newbie, Roles: []string{constants.ROLE_MEMBER}})

	pub := &mq.MemoryPublisher{}
	remover := &fakeRemover{}
	svc := NewConflictService(repos, pub, remover, config.ConflictConfig{VotingDurationHours: 24})
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, repos: repos, pub: pub, remover: remover, groupId: group.ID}
}

func (f *fixture) openCase(t *testing.T) (*model.Case, *model.Voting) {
	t.Helper()
	c, err := f.svc.CreateCase(context.Background(), request.CreateCaseRequest{
		GroupId: f.groupId, CreatedById: editorA, AffectedUserId: affected, Topic: "keeps missing pickups",
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.repos.Conflict.FindLatestVoting(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	return c, v
}

func proposalOf(t *testing.T, v *model.Voting, typ model.ProposalType) uint {
	t.Helper()
	for _, p := range v.Proposals {
		if p.Type == typ {
			return p.ID
		}
	}
	t.Fatalf("voting %d has no %s proposal", v.ID, typ)
	return 0
}

func (f *fixture) vote(t *testing.T, v *model.Voting, user uint, scores map[model.ProposalType]int) {
	t.Helper()
	req := request.SaveVotesRequest{VotingId: v.ID, UserId: user}
	for typ, score := range scores {
		req.Scores = append(req.Scores, request.ProposalScore{ProposalId: proposalOf(t, v, typ), Score: score})
	}
	if _, err := f.svc.SaveVotes(context.Background(), req); err != nil {
		t.Fatal(err)
	}
}

func afterExpiry() time.Time {
	return fixedNow.Add(25 * time.Hour)
}

func TestCreateCaseSeedsProposalsAndRejectsSecondCase(t *testing.T) {
	f := newFixture(t)
	c, v := f.openCase(t)
	if c.Status != model.CaseOngoing || len(v.Proposals) != 3 {
		t.Fatalf("case %+v with %d proposals", c, len(v.Proposals))
	}
	if !v.ExpiresAt.Equal(fixedNow.Add(24 * time.Hour)) {
		t.Fatalf("expires at %v", v.ExpiresAt)
	}

	_, err := f.svc.CreateCase(context.Background(), request.CreateCaseRequest{
		GroupId: f.groupId, CreatedById: editorB, AffectedUserId: affected, Topic: "again",
	})
	if !errorx.IsValidation(err) {
		t.Fatalf("second ongoing case: %v", err)
	}
	_, err = f.svc.CreateCase(context.Background(), request.CreateCaseRequest{
		GroupId: f.groupId, CreatedById: newbie, AffectedUserId: editorB, Topic: "not an editor",
	})
	if !errorx.IsValidation(err) {
		t.Fatalf("non-editor creator: %v", err)
	}
}

func TestSaveVotesValidation(t *testing.T) {
	f := newFixture(t)
	_, v := f.openCase(t)
	ctx := context.Background()
	remove := proposalOf(t, v, model.ProposalRemoveUser)

	_, err := f.svc.SaveVotes(ctx, request.SaveVotesRequest{
		VotingId: v.ID, UserId: editorA, Scores: []request.ProposalScore{{ProposalId: remove, Score: 3}},
	})
	if !errorx.IsValidation(err) {
		t.Fatalf("score out of range: %v", err)
	}
	_, err = f.svc.SaveVotes(ctx, request.SaveVotesRequest{
		VotingId: v.ID, UserId: newbie, Scores: []request.ProposalScore{{ProposalId: remove, Score: 1}},
	})
	if !errorx.IsValidation(err) {
		t.Fatalf("non-editor vote: %v", err)
	}
	_, err = f.svc.SaveVotes(ctx, request.SaveVotesRequest{
		VotingId: v.ID, UserId: editorA, Scores: []request.ProposalScore{{ProposalId: 9999, Score: 1}},
	})
	if !errorx.IsValidation(err) {
		t.Fatalf("foreign proposal: %v", err)
	}
}

func TestSaveVotesReplacesPreviousVotes(t *testing.T) {
	f := newFixture(t)
	_, v := f.openCase(t)
	f.vote(t, v, editorA, map[model.ProposalType]int{model.ProposalRemoveUser: 2, model.ProposalNoChange: -2})
	f.vote(t, v, editorA, map[model.ProposalType]int{model.ProposalNoChange: 1})

	got, err := f.repos.Conflict.FindVotingById(v.ID)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, p := range got.Proposals {
		total += len(p.Votes)
		if p.Type == model.ProposalNoChange && (len(p.Votes) != 1 || p.Votes[0].Score != 1) {
			t.Fatalf("no_change votes = %+v", p.Votes)
		}
	}
	if total != 1 {
		t.Fatalf("old votes not replaced, %d votes", total)
	}

	if err := f.svc.DeleteVotes(context.Background(), v.ID, editorA); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteVotes(context.Background(), v.ID, editorA); !errorx.IsNotFound(err) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestExpiredVotingWithoutVotesCancelsCase(t *testing.T) {
	f := newFixture(t)
	c, _ := f.openCase(t)

	summary, err := f.svc.ProcessExpiredVotings(context.Background(), afterExpiry())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 1 || summary.Failed != 0 {
		t.Fatalf("summary %+v", summary)
	}
	got, err := f.repos.Conflict.FindCaseById(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CaseCancelled || len(got.Votings) != 1 {
		t.Fatalf("case %+v", got)
	}
	if got.Votings[0].AcceptedProposalId != nil || got.Votings[0].DecidedAt == nil {
		t.Fatalf("voting %+v", got.Votings[0])
	}
	if len(f.remover.calls) != 0 || f.pub.Count(mq.EventCaseCancelled) != 1 {
		t.Fatalf("remover calls %v, events %+v", f.remover.calls, f.pub.Events())
	}

	// 再次清扫不会重复处理
	summary, err = f.svc.ProcessExpiredVotings(context.Background(), afterExpiry().Add(time.Hour))
	if err != nil || summary.Processed != 0 {
		t.Fatalf("second sweep %+v, %v", summary, err)
	}
}

func TestRemoveUserWinnerRemovesMember(t *testing.T) {
	f := newFixture(t)
	c, v := f.openCase(t)
	f.vote(t, v, editorA, map[model.ProposalType]int{model.ProposalRemoveUser: 2})
	f.vote(t, v, editorB, map[model.ProposalType]int{model.ProposalRemoveUser: 1, model.ProposalNoChange: -1})

	if _, err := f.svc.ProcessExpiredVotings(context.Background(), afterExpiry()); err != nil {
		t.Fatal(err)
	}
	got, err := f.repos.Conflict.FindCaseById(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CaseDecided || len(got.Votings) != 1 {
		t.Fatalf("case %+v", got)
	}
	decided, err := f.repos.Conflict.FindVotingById(v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if decided.AcceptedProposalId == nil || *decided.AcceptedProposalId != proposalOf(t, v, model.ProposalRemoveUser) {
		t.Fatalf("accepted %v", decided.AcceptedProposalId)
	}
	for _, p := range decided.Proposals {
		if p.SumScore == nil {
			t.Fatalf("score not stored for proposal %d", p.ID)
		}
	}
	if len(f.remover.calls) != 1 || f.remover.calls[0] != affected {
		t.Fatalf("remover calls %v", f.remover.calls)
	}
	if len(f.remover.committed) != 1 || f.remover.committed[0] != f.groupId {
		t.Fatalf("post-commit hook calls %v", f.remover.committed)
	}
	if _, err := f.repos.GroupMember.FindByGroupAndUser(f.groupId, affected); !errorx.IsNotFound(err) {
		t.Fatalf("member should be removed: %v", err)
	}
	if f.pub.Count(mq.EventMemberRemoved) != 1 || f.pub.Count(mq.EventVotingEnded) != 1 {
		t.Fatalf("events %+v", f.pub.Events())
	}

	history, err := f.repos.History.FindByGroup(f.groupId)
	if err != nil {
		t.Fatal(err)
	}
	removed := 0
	for _, h := range history {
		if h.Typus == model.HistoryMemberRemoved {
			removed++
		}
	}
	if removed != 1 {
		t.Fatalf("history %+v", history)
	}
}

func TestVotingSweepIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	failing, fv := f.openCase(t)
	healthy, err := f.svc.CreateCase(ctx, request.CreateCaseRequest{
		GroupId: f.groupId, CreatedById: editorB, AffectedUserId: newbie, Topic: "never shows up",
	})
	if err != nil {
		t.Fatal(err)
	}
	hv, err := f.repos.Conflict.FindLatestVoting(healthy.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []*model.Voting{fv, hv} {
		f.vote(t, v, editorC, map[model.ProposalType]int{model.ProposalRemoveUser: 2})
	}
	// 级联清理中的 NotFound 不能被当成已结算而跳过
	f.remover.fail = map[uint]error{affected: errorx.Newf(errorx.CodeNotFound, "成员 %d 不存在", affected)}

	summary, err := f.svc.ProcessExpiredVotings(ctx, afterExpiry())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary %+v", summary)
	}
	got, err := f.repos.Conflict.FindCaseById(healthy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CaseDecided {
		t.Fatalf("healthy case %+v", got)
	}
	pending, err := f.repos.Conflict.FindVotingById(fv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !pending.IsOngoing() || pending.DecidedAt != nil {
		t.Fatalf("failed voting was settled: %+v", pending)
	}
	if len(f.remover.committed) != 1 {
		t.Fatalf("post-commit hook calls %v", f.remover.committed)
	}

	// 下一次清扫重试
	f.remover.fail = nil
	summary, err = f.svc.ProcessExpiredVotings(ctx, afterExpiry().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 1 || summary.Failed != 0 {
		t.Fatalf("retry summary %+v", summary)
	}
	got, err = f.repos.Conflict.FindCaseById(failing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CaseDecided {
		t.Fatalf("retried case %+v", got)
	}
	if _, err := f.repos.GroupMember.FindByGroupAndUser(f.groupId, affected); !errorx.IsNotFound(err) {
		t.Fatalf("member should be removed after retry: %v", err)
	}
}

func TestTieSpawnsContinuationRound(t *testing.T) {
	f := newFixture(t)
	c, v := f.openCase(t)
	f.vote(t, v, editorA, map[model.ProposalType]int{model.ProposalRemoveUser: 2, model.ProposalNoChange: 2})
	f.vote(t, v, editorB, map[model.ProposalType]int{model.ProposalRemoveUser: 2, model.ProposalNoChange: 2})
	f.vote(t, v, editorC, map[model.ProposalType]int{model.ProposalRemoveUser: 1, model.ProposalNoChange: 1})

	closedAt := afterExpiry()
	outcome, err := f.svc.CloseVoting(context.Background(), v.ID, closedAt)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeFurtherDiscussion || !outcome.Tie {
		t.Fatalf("outcome %+v", outcome)
	}

	got, err := f.repos.Conflict.FindCaseById(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CaseOngoing || len(got.Votings) != 2 {
		t.Fatalf("case %+v", got)
	}
	next, err := f.repos.Conflict.FindLatestVoting(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !next.IsOngoing() || !next.ExpiresAt.Equal(closedAt.Add(24*time.Hour)) {
		t.Fatalf("continuation %+v", next)
	}
	if len(next.Proposals) != len(v.Proposals) {
		t.Fatalf("continuation has %d proposals", len(next.Proposals))
	}
	for i, p := range next.Proposals {
		if p.Type != v.Proposals[i].Type || len(p.Votes) != 0 {
			t.Fatalf("proposal %d not cloned cleanly: %+v", i, p)
		}
	}
	if len(f.remover.calls) != 0 || f.pub.Count(mq.EventNewVoting) != 1 {
		t.Fatalf("remover %v, events %+v", f.remover.calls, f.pub.Events())
	}

	if _, err := f.svc.CloseVoting(context.Background(), v.ID, closedAt); !errors.Is(err, ErrVotingDecided) || !errorx.IsNotFound(err) {
		t.Fatalf("closing a decided voting again: %v", err)
	}
}

func TestCancelCasesTx(t *testing.T) {
	f := newFixture(t)
	c, v := f.openCase(t)
	err := f.repos.Transaction(func(txRepos *repository.Repositories) error {
		events, err := CancelCasesTx(txRepos, f.groupId, affected, fixedNow)
		if err != nil {
			return err
		}
		if len(events) != 1 || events[0].Type != mq.EventCaseCancelled {
			t.Errorf("events %+v", events)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.repos.Conflict.FindCaseById(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CaseCancelled {
		t.Fatalf("case %+v", got)
	}
	ids, err := f.repos.Conflict.ListExpiredUndecidedVotingIds(afterExpiry())
	if err != nil || len(ids) != 0 {
		t.Fatalf("cancelled voting still pending: %v %v (voting %d)", ids, err, v.ID)
	}
}
