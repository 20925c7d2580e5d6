package activity

import (
	"context"
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
	"karrot_server/pkg/util/ptr"

	"gorm.io/gorm"
)

// 2024-03-05 周二 10:00 UTC
var fixedNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *activityService
	repos *repository.Repositories
	db    *gorm.DB
	pub   *mq.MemoryPublisher
	place *model.Place
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, db := dbtest.Open(t)
	group := &model.GroupInfo{Name: "foodsavers", Timezone: "UTC"}
	dbtest.MustCreate(t, db, group)
	place := &model.Place{GroupId: group.ID, Name: "bakery"}
	dbtest.MustCreate(t, db, place)
	for _, uid := range []uint{7, 8} {
		dbtest.MustCreate(t, db, &model.GroupMember{GroupId: group.ID, UserId: uid, Roles: []string{constants.ROLE_MEMBER}})
	}

	pub := &mq.MemoryPublisher{}
	svc := NewActivityService(repos, pub, config.ActivityConfig{})
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, repos: repos, db: db, pub: pub, place: place}
}

func (f *fixture) createWeekly(t *testing.T, maxParticipants int) *model.ActivitySeries {
	t.Helper()
	series, err := f.svc.CreateSeries(context.Background(), request.CreateSeriesRequest{
		UserId:    7,
		PlaceId:   f.place.ID,
		Rule:      "FREQ=WEEKLY",
		StartDate: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC),
		ParticipantTypes: []request.SeriesParticipantTypeRequest{
			{Role: constants.ROLE_MEMBER, MaxParticipants: ptr.Of(maxParticipants), Description: "pickup"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return series
}

func (f *fixture) upcoming(t *testing.T, seriesId uint) []model.Activity {
	t.Helper()
	list, err := f.repos.Activity.ListUpcomingBySeries(seriesId, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestCreateSeriesExpandsWindow(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 2)

	list := f.upcoming(t, series.ID)
	if len(list) != 6 {
		t.Fatalf("expected six weekly activities in the window, got %d", len(list))
	}
	first := list[0]
	if !first.StartAt.Equal(time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("first activity at %v", first.StartAt)
	}
	if first.HasDuration || first.EndAt.Sub(first.StartAt) != model.DefaultActivityDuration {
		t.Fatalf("default duration not applied: %+v", first)
	}
	if len(first.ParticipantTypes) != 1 || *first.ParticipantTypes[0].MaxParticipants != 2 {
		t.Fatalf("participant types not copied: %+v", first.ParticipantTypes)
	}
	if f.pub.Count(mq.EventSeriesReconciled) != 1 {
		t.Fatalf("events = %+v", f.pub.Events())
	}
}

func TestCreateSeriesRejectsInvalidRule(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateSeries(context.Background(), request.CreateSeriesRequest{
		UserId: 7, PlaceId: f.place.ID, Rule: "FREQ=WEEKLY,FREQ=DAILY", StartDate: fixedNow,
	})
	if !errorx.IsValidation(err) {
		t.Fatalf("got %v, want validation error", err)
	}
	ids, err := f.repos.Series.FindAllIds()
	if err != nil || len(ids) != 0 {
		t.Fatalf("series stored despite invalid rule: %v %v", ids, err)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 2)

	result, err := f.svc.ReconcileSeries(context.Background(), series.ID, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 0 || result.Kept != 6 || result.Changed() {
		t.Fatalf("second reconcile changed things: %+v", result)
	}

	// 一周后窗口向前滚动，新增一个活动
	result, err = f.svc.ReconcileSeries(context.Background(), series.ID, fixedNow.Add(7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 1 || result.Kept != 5 {
		t.Fatalf("rolling window: %+v", result)
	}
}

func TestAddParticipantCapacityAndDuplicates(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 1)
	first := f.upcoming(t, series.ID)[0]
	pt := first.ParticipantTypes[0]
	ctx := context.Background()

	join := request.JoinActivityRequest{UserId: 7, ActivityId: first.ID, ParticipantTypeId: pt.ID}
	if err := f.svc.AddParticipant(ctx, join); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.AddParticipant(ctx, join); !errorx.IsValidation(err) {
		t.Fatalf("duplicate join: %v", err)
	}
	join.UserId = 8
	if err := f.svc.AddParticipant(ctx, join); !errorx.IsValidation(err) {
		t.Fatalf("join beyond capacity: %v", err)
	}
	join.UserId = 99
	if err := f.svc.AddParticipant(ctx, join); !errorx.IsValidation(err) {
		t.Fatalf("non-member join: %v", err)
	}

	if err := f.svc.RemoveParticipant(ctx, first.ID, 7); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RemoveParticipant(ctx, first.ID, 7); !errorx.IsNotFound(err) {
		t.Fatalf("second leave: %v", err)
	}
	join.UserId = 8
	if err := f.svc.AddParticipant(ctx, join); err != nil {
		t.Fatalf("slot should be free again: %v", err)
	}
}

func TestDeleteSeriesDetachesActivitiesWithParticipants(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 2)
	list := f.upcoming(t, series.ID)
	first := list[0]
	if err := f.svc.AddParticipant(context.Background(), request.JoinActivityRequest{
		UserId: 7, ActivityId: first.ID, ParticipantTypeId: first.ParticipantTypes[0].ID,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := f.svc.DeleteSeries(context.Background(), series.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	if result.Detached != 1 || result.Deleted != 5 {
		t.Fatalf("delete result: %+v", result)
	}

	kept, err := f.repos.Activity.FindById(first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if kept.SeriesId != nil || kept.ParticipantCount() != 1 {
		t.Fatalf("activity with participant should be detached and kept: %+v", kept)
	}
	if _, err := f.repos.Activity.FindById(list[1].ID); !errorx.IsNotFound(err) {
		t.Fatalf("empty activity should be deleted: %v", err)
	}
	if _, err := f.repos.Series.FindById(series.ID); !errorx.IsNotFound(err) {
		t.Fatalf("series should be deleted: %v", err)
	}

	history, err := f.repos.History.FindByGroup(f.place.GroupId)
	if err != nil {
		t.Fatal(err)
	}
	var detached, deleted int
	for _, h := range history {
		switch h.Typus {
		case model.HistoryActivityDetached:
			detached++
		case model.HistorySeriesDeleted:
			deleted++
		}
	}
	if detached != 1 || deleted != 1 {
		t.Fatalf("history: %+v", history)
	}
}

func TestDeleteSeriesLeavesNoActivityLinked(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 2)
	list := f.upcoming(t, series.ID)
	second := list[1]
	if err := f.svc.AddParticipant(context.Background(), request.JoinActivityRequest{
		UserId: 7, ActivityId: second.ID, ParticipantTypeId: second.ParticipantTypes[0].ID,
	}); err != nil {
		t.Fatal(err)
	}
	start := series.StartDate
	past := &model.Activity{PlaceId: f.place.ID, SeriesId: ptr.Of(series.ID), StartAt: start, EndAt: start.Add(time.Hour)}
	dbtest.MustCreate(t, f.db, past)

	// 第一个活动三分钟后开始，落在对账窗口之前
	now := list[0].StartAt.Add(-3 * time.Minute)
	f.svc.now = func() time.Time { return now }
	result, err := f.svc.DeleteSeries(context.Background(), series.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	if result.Deleted != 5 || result.Detached != 1 {
		t.Fatalf("delete result: %+v", result)
	}

	if _, err := f.repos.Activity.FindById(list[0].ID); !errorx.IsNotFound(err) {
		t.Fatalf("empty activity inside the offset should be deleted: %v", err)
	}
	kept, err := f.repos.Activity.FindById(past.ID)
	if err != nil {
		t.Fatal(err)
	}
	if kept.SeriesId != nil {
		t.Fatalf("past activity still linked to series %d", *kept.SeriesId)
	}
	var linked int64
	if err := f.db.Model(&model.Activity{}).Where("series_id = ?", series.ID).Count(&linked).Error; err != nil {
		t.Fatal(err)
	}
	if linked != 0 {
		t.Fatalf("%d activities still reference the deleted series", linked)
	}
}

func TestUpdateSeriesPropagatesOnlyUnchangedFields(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 1)
	list := f.upcoming(t, series.ID)

	// 第二个活动单独调整过名额
	custom := list[1].ParticipantTypes[0]
	custom.MaxParticipants = ptr.Of(5)
	if err := f.repos.Activity.UpdateParticipantType(&custom); err != nil {
		t.Fatal(err)
	}

	tpl := series.ParticipantTypes[0]
	_, err := f.svc.UpdateSeries(context.Background(), request.UpdateSeriesRequest{
		UserId:   7,
		SeriesId: series.ID,
		ParticipantTypes: []request.SeriesParticipantTypeRequest{
			{Id: tpl.ID, Role: tpl.Role, MaxParticipants: ptr.Of(3), Description: "new description"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	list = f.upcoming(t, series.ID)
	if len(list) != 6 {
		t.Fatalf("got %d activities", len(list))
	}
	for i, a := range list {
		slot := a.ParticipantTypes[0]
		want := 3
		if a.ID == custom.ActivityId {
			want = 5
		}
		if *slot.MaxParticipants != want {
			t.Fatalf("activity %d: max participants %d, want %d", i, *slot.MaxParticipants, want)
		}
		if slot.Description != "new description" {
			t.Fatalf("activity %d: description %q", i, slot.Description)
		}
	}
}

func TestUpdateSeriesChangesDuration(t *testing.T) {
	f := newFixture(t)
	series := f.createWeekly(t, 1)
	_, err := f.svc.UpdateSeries(context.Background(), request.UpdateSeriesRequest{
		UserId: 7, SeriesId: series.ID, DurationSeconds: ptr.Of(int64(3600)),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range f.upcoming(t, series.ID) {
		if !a.HasDuration || a.EndAt.Sub(a.StartAt) != time.Hour {
			t.Fatalf("duration not propagated: %+v", a)
		}
	}
}

func TestUpdateAllSeriesIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	good := f.createWeekly(t, 1)

	// 直接写入一个时区无效的取货点和系列，模拟单个系列失败
	badPlace := &model.Place{GroupId: f.place.GroupId, Name: "broken", Timezone: "Mars/Olympus"}
	dbtest.MustCreate(t, f.db, badPlace)
	dbtest.MustCreate(t, f.db, &model.ActivitySeries{PlaceId: badPlace.ID, Rule: "FREQ=DAILY", StartDate: fixedNow})

	summary, err := f.svc.UpdateAllSeries(context.Background(), fixedNow.Add(7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	if n := len(f.upcoming(t, good.ID)); n != 7 {
		t.Fatalf("good series should have rolled forward, got %d", n)
	}
}
