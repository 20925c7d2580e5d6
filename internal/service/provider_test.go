package service

import (
	"context"
	"testing"
	"time"

	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/dbtest"
	myredis "karrot_server/internal/dao/redis"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/internal/worker"
	"karrot_server/pkg/constants"
)

// TestRemoveUserDecisionRunsMembershipCascade 投票结果为移除成员时，成员关系服务完成级联清理
func TestRemoveUserDecisionRunsMembershipCascade(t *testing.T) {
	repos, db := dbtest.Open(t)
	pub := &mq.MemoryPublisher{}
	svc := NewServices(repos, myredis.NewMemoryCache(), pub, &config.Config{})
	ctx := context.Background()

	group := &model.GroupInfo{Name: "g", Timezone: "UTC"}
	dbtest.MustCreate(t, db, group)
	long := time.Now().Add(-72 * time.Hour).UTC()
	members := map[uint]*model.GroupMember{}
	for uid := uint(1); uid <= 4; uid++ {
		m := &model.GroupMember{CreatedAt: long, GroupId: group.ID, UserId: uid, Roles: []string{constants.ROLE_MEMBER, constants.ROLE_EDITOR}}
		dbtest.MustCreate(t, db, m)
		members[uid] = m
	}
	// 用户 4 信任过用户 3
	dbtest.MustCreate(t, db, &model.Trust{MembershipId: members[3].ID, GivenById: 4})

	c, err := svc.Conflict.CreateCase(ctx, request.CreateCaseRequest{GroupId: group.ID, CreatedById: 1, AffectedUserId: 4, Topic: "t"})
	if err != nil {
		t.Fatal(err)
	}
	voting, err := repos.Conflict.FindLatestVoting(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	var remove uint
	for _, p := range voting.Proposals {
		if p.Type == model.ProposalRemoveUser {
			remove = p.ID
		}
	}
	for _, uid := range []uint{1, 2} {
		if _, err := svc.Conflict.SaveVotes(ctx, request.SaveVotesRequest{
			VotingId: voting.ID, UserId: uid, Scores: []request.ProposalScore{{ProposalId: remove, Score: 2}},
		}); err != nil {
			t.Fatal(err)
		}
	}

	sweeper := worker.NewSweeper(nil, svc.Sweeps(&config.Config{})...)
	if _, err := sweeper.RunOnce(ctx, "votings"); err != nil {
		t.Fatal(err)
	}
	// 还没到期，不会结算
	if pub.Count(mq.EventMemberRemoved) != 0 {
		t.Fatal("voting closed before expiry")
	}

	if _, err := svc.Conflict.CloseVoting(ctx, voting.ID, voting.ExpiresAt); err != nil {
		t.Fatal(err)
	}
	if _, err := repos.GroupMember.FindByGroupAndUser(group.ID, 4); err == nil {
		t.Fatal("user 4 still a member")
	}
	if n, _ := repos.Trust.CountByMembership(members[3].ID); n != 0 {
		t.Fatalf("trust given by removed member kept: %d", n)
	}
	if pub.Count(mq.EventMemberRemoved) != 1 {
		t.Fatalf("events %+v", pub.Events())
	}
}
