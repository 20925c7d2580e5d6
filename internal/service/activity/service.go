// Package activity 实现活动系列的展开与对账，以及活动报名
package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"karrot_server/internal/config"
	"karrot_server/internal/dao/mysql/repository"
	"karrot_server/internal/dto/request"
	"karrot_server/internal/dto/respond"
	"karrot_server/internal/infrastructure/mq"
	"karrot_server/internal/model"
	"karrot_server/pkg/errorx"
	"karrot_server/pkg/util/ptr"
	"karrot_server/pkg/validate"
)

// activityService 活动系列业务逻辑实现
type activityService struct {
	repos     *repository.Repositories
	publisher mq.Publisher
	cfg       config.ActivityConfig
	now       func() time.Time
}

// NewActivityService 构造函数，注入所有依赖
func NewActivityService(repos *repository.Repositories, publisher mq.Publisher, cfg config.ActivityConfig) *activityService {
	return &activityService{
		repos:     repos,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateSeries 创建活动系列并立即展开
func (s *activityService) CreateSeries(ctx context.Context, req request.CreateSeriesRequest) (*model.ActivitySeries, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if err := ValidateRule(req.Rule); err != nil {
		return nil, err
	}
	now := s.now()

	series := &model.ActivitySeries{
		PlaceId:         req.PlaceId,
		Rule:            req.Rule,
		StartDate:       req.StartDate,
		DurationSeconds: ptr.Clone(req.DurationSeconds),
		Description:     req.Description,
	}
	for _, pt := range req.ParticipantTypes {
		series.ParticipantTypes = append(series.ParticipantTypes, model.SeriesParticipantType{
			Role:            pt.Role,
			MaxParticipants: ptr.Clone(pt.MaxParticipants),
			Description:     pt.Description,
		})
	}

	var result respond.ReconcileRespond
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		place, err := txRepos.Group.FindPlaceById(req.PlaceId)
		if err != nil {
			return err
		}
		if err := txRepos.Series.Create(series); err != nil {
			return err
		}
		series.Place = *place
		if err := writeHistory(txRepos, model.HistorySeriesCreated, place.GroupId, req.UserId, series.ID); err != nil {
			return err
		}
		result, err = s.reconcileTx(txRepos, series, now)
		return err
	})
	if err != nil {
		zap.L().Error("create series failed", zap.Uint("placeId", req.PlaceId), zap.Error(err))
		return nil, err
	}
	s.publishReconcile(ctx, series, result, now)
	return series, nil
}

// UpdateSeries 修改系列
// 名额模板的修改只传播到尚未开始的活动，且只覆盖未被单独调整过的字段
func (s *activityService) UpdateSeries(ctx context.Context, req request.UpdateSeriesRequest) (*model.ActivitySeries, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Rule != nil {
		if err := ValidateRule(*req.Rule); err != nil {
			return nil, err
		}
	}
	now := s.now()

	var series *model.ActivitySeries
	var result respond.ReconcileRespond
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		var err error
		series, err = txRepos.Series.FindById(req.SeriesId)
		if err != nil {
			return err
		}
		before := *series
		applySeriesChanges(series, req)
		if err := txRepos.Series.Update(series); err != nil {
			return err
		}

		changes, err := syncTemplates(txRepos, series, req.ParticipantTypes)
		if err != nil {
			return err
		}
		upcoming, err := txRepos.Activity.ListUpcomingBySeries(series.ID, now)
		if err != nil {
			return err
		}
		for i := range upcoming {
			if err := propagateToActivity(txRepos, &upcoming[i], &before, series, changes); err != nil {
				return err
			}
		}

		if err := writeHistory(txRepos, model.HistorySeriesModified, series.Place.GroupId, req.UserId, series.ID); err != nil {
			return err
		}
		result, err = s.reconcileTx(txRepos, series, now)
		return err
	})
	if err != nil {
		zap.L().Error("update series failed", zap.Uint("seriesId", req.SeriesId), zap.Error(err))
		return nil, err
	}
	s.publishReconcile(ctx, series, result, now)
	return series, nil
}

// DeleteSeries 删除系列
// 先把 UNTIL 改写为当前时间并做最后一次对账，清理或脱离已展开的未来活动，
// 其余活动全部脱离系列后再删除系列
func (s *activityService) DeleteSeries(ctx context.Context, seriesId, userId uint) (respond.ReconcileRespond, error) {
	now := s.now()
	var series *model.ActivitySeries
	var result respond.ReconcileRespond
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		var err error
		series, err = txRepos.Series.FindById(seriesId)
		if err != nil {
			return err
		}
		frozen, err := RuleWithUntil(series.Rule, now)
		if err != nil {
			return err
		}
		series.Rule = frozen
		if err := txRepos.Series.Update(series); err != nil {
			return err
		}
		result, err = s.reconcileTx(txRepos, series, now)
		if err != nil {
			return err
		}
		// 对账窗口从 now 之后一段时间才开始，窗口前尚未开始的活动单独清理
		leftover, err := txRepos.Activity.ListUpcomingBySeries(series.ID, now)
		if err != nil {
			return err
		}
		for i := range leftover {
			detached, err := pruneActivity(txRepos, series, &leftover[i])
			if err != nil {
				return err
			}
			if detached {
				result.Detached++
			} else {
				result.Deleted++
			}
		}
		// 已开始和已结束的活动保留，但不再指向系列
		if _, err := txRepos.Activity.DetachBySeries(series.ID); err != nil {
			return err
		}
		if err := writeHistory(txRepos, model.HistorySeriesDeleted, series.Place.GroupId, userId, series.ID); err != nil {
			return err
		}
		return txRepos.Series.Delete(series.ID)
	})
	if err != nil {
		zap.L().Error("delete series failed", zap.Uint("seriesId", seriesId), zap.Error(err))
		return result, err
	}
	s.publishReconcile(ctx, series, result, now)
	return result, nil
}

// ReconcileSeries 在单独事务中对账一个系列
func (s *activityService) ReconcileSeries(ctx context.Context, seriesId uint, now time.Time) (respond.ReconcileRespond, error) {
	var series *model.ActivitySeries
	var result respond.ReconcileRespond
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		var err error
		series, err = txRepos.Series.FindById(seriesId)
		if err != nil {
			return err
		}
		result, err = s.reconcileTx(txRepos, series, now)
		return err
	})
	if err != nil {
		return result, err
	}
	s.publishReconcile(ctx, series, result, now)
	return result, nil
}

// UpdateAllSeries 清扫全部系列，单个系列失败只记录日志并跳过，下次清扫重试
func (s *activityService) UpdateAllSeries(ctx context.Context, now time.Time) (respond.SweepRespond, error) {
	summary := respond.SweepRespond{Name: "series"}
	ids, err := s.repos.Series.FindAllIds()
	if err != nil {
		return summary, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			zap.L().Warn("series sweep interrupted", zap.Int("remaining", len(ids)-summary.Processed-summary.Failed))
			break
		}
		result, err := s.ReconcileSeries(ctx, id, now)
		if err != nil {
			summary.Failed++
			zap.L().Error("reconcile series failed", zap.Uint("seriesId", id), zap.Error(err))
			continue
		}
		summary.Processed++
		zap.L().Debug("series reconciled",
			zap.Uint("seriesId", id),
			zap.Int("created", result.Created),
			zap.Int("deleted", result.Deleted),
			zap.Int("detached", result.Detached),
		)
	}
	return summary, nil
}

// reconcileTx 计算窗口内的目标时间，与已有活动匹配后创建、删除或脱离
func (s *activityService) reconcileTx(txRepos *repository.Repositories, series *model.ActivitySeries, now time.Time) (respond.ReconcileRespond, error) {
	result := respond.ReconcileRespond{SeriesId: series.ID}
	tz, err := series.Place.Location()
	if err != nil {
		return result, errorx.Wrapf(err, errorx.CodeValidation, "无效的时区 place_id=%d", series.PlaceId)
	}

	windowStart := now.Add(s.cfg.StartOffset())
	dates, err := ComputeTargetDates(series.Rule, series.StartDate, tz, windowStart, s.cfg.Window())
	if err != nil {
		return result, err
	}
	existing, err := txRepos.Activity.ListUpcomingBySeries(series.ID, windowStart)
	if err != nil {
		return result, err
	}
	if err := checkAscending(existing); err != nil {
		return result, err
	}

	m := NewMatcher(existing, activityStart, dates)
	for {
		p, ok := m.Next()
		if !ok {
			break
		}
		switch {
		case p.HasInstance && p.HasDate:
			result.Kept++
		case p.HasDate:
			activity := newActivityFromSeries(series, p.Date)
			if err := txRepos.Activity.Create(activity); err != nil {
				return result, err
			}
			result.Created++
		default:
			detached, err := pruneActivity(txRepos, series, &p.Instance)
			if err != nil {
				return result, err
			}
			if detached {
				result.Detached++
			} else {
				result.Deleted++
			}
		}
	}
	return result, nil
}

// pruneActivity 处理不再对应目标时间的活动：无人报名则删除，否则脱离系列
func pruneActivity(txRepos *repository.Repositories, series *model.ActivitySeries, activity *model.Activity) (bool, error) {
	if activity.ParticipantCount() == 0 {
		return false, txRepos.Activity.Delete(activity.ID)
	}
	if err := txRepos.Activity.Detach(activity.ID); err != nil {
		return false, err
	}
	h := &model.History{
		Typus:    model.HistoryActivityDetached,
		GroupId:  series.Place.GroupId,
		ObjectId: ptr.Of(activity.ID),
	}
	if err := h.SetPayload(map[string]any{"seriesId": series.ID, "participants": activity.ParticipantCount()}); err != nil {
		return false, errorx.Wrap(err, errorx.CodeInvariant, "序列化历史")
	}
	return true, txRepos.History.Create(h)
}

// newActivityFromSeries 按系列模板生成活动
func newActivityFromSeries(series *model.ActivitySeries, start time.Time) *model.Activity {
	duration, hasDuration := series.Duration()
	if !hasDuration {
		duration = model.DefaultActivityDuration
	}
	activity := &model.Activity{
		PlaceId:     series.PlaceId,
		SeriesId:    ptr.Of(series.ID),
		StartAt:     start,
		EndAt:       start.Add(duration),
		HasDuration: hasDuration,
		Description: series.Description,
	}
	for _, tpl := range series.ParticipantTypes {
		activity.ParticipantTypes = append(activity.ParticipantTypes, slotFromTemplate(tpl))
	}
	return activity
}

func slotFromTemplate(tpl model.SeriesParticipantType) model.ParticipantType {
	return model.ParticipantType{
		SeriesParticipantTypeId: ptr.Of(tpl.ID),
		Role:                    tpl.Role,
		MaxParticipants:         ptr.Clone(tpl.MaxParticipants),
		Description:             tpl.Description,
	}
}

func activityStart(a model.Activity) time.Time {
	return a.StartAt
}

// checkAscending 匹配要求输入按开始时间升序
func checkAscending(list []model.Activity) error {
	for i := 1; i < len(list); i++ {
		if list[i].StartAt.Before(list[i-1].StartAt) {
			return errorx.Invariant("活动未按开始时间排序: id=%d 早于 id=%d", list[i].ID, list[i-1].ID)
		}
	}
	return nil
}

// applySeriesChanges 把请求中的修改写入系列
func applySeriesChanges(series *model.ActivitySeries, req request.UpdateSeriesRequest) {
	if req.Rule != nil {
		series.Rule = *req.Rule
	}
	if req.StartDate != nil {
		series.StartDate = *req.StartDate
	}
	if req.DurationSeconds != nil {
		if *req.DurationSeconds == 0 {
			series.DurationSeconds = nil
		} else {
			series.DurationSeconds = ptr.Clone(req.DurationSeconds)
		}
	}
	if req.Description != nil {
		series.Description = *req.Description
	}
}

// templateChanges 一次修改中名额模板的变化
type templateChanges struct {
	updated map[uint]model.SeriesParticipantType // 模板 ID -> 修改前的值
	added   []model.SeriesParticipantType
	removed map[uint]bool
}

// syncTemplates 按请求同步名额模板，返回变化用于传播
func syncTemplates(txRepos *repository.Repositories, series *model.ActivitySeries, reqs []request.SeriesParticipantTypeRequest) (templateChanges, error) {
	changes := templateChanges{updated: map[uint]model.SeriesParticipantType{}, removed: map[uint]bool{}}
	if reqs == nil {
		return changes, nil
	}

	current := make(map[uint]model.SeriesParticipantType, len(series.ParticipantTypes))
	for _, tpl := range series.ParticipantTypes {
		current[tpl.ID] = tpl
	}
	next := make([]model.SeriesParticipantType, 0, len(reqs))
	seen := make(map[uint]bool, len(reqs))
	for _, r := range reqs {
		tpl := model.SeriesParticipantType{
			ID:              r.Id,
			SeriesId:        series.ID,
			Role:            r.Role,
			MaxParticipants: ptr.Clone(r.MaxParticipants),
			Description:     r.Description,
		}
		if r.Id != 0 {
			old, ok := current[r.Id]
			if !ok {
				return changes, errorx.Validation("名额模板 %d 不属于系列 %d", r.Id, series.ID)
			}
			seen[r.Id] = true
			if templateEqual(old, tpl) {
				next = append(next, old)
				continue
			}
			changes.updated[r.Id] = old
		}
		if err := txRepos.Series.SaveParticipantType(&tpl); err != nil {
			return changes, err
		}
		if r.Id == 0 {
			changes.added = append(changes.added, tpl)
		}
		next = append(next, tpl)
	}
	for id := range current {
		if seen[id] {
			continue
		}
		if err := txRepos.Series.DeleteParticipantType(id); err != nil {
			return changes, err
		}
		changes.removed[id] = true
	}
	series.ParticipantTypes = next
	return changes, nil
}

func templateEqual(a, b model.SeriesParticipantType) bool {
	return a.Role == b.Role && ptr.Equal(a.MaxParticipants, b.MaxParticipants) && a.Description == b.Description
}

// propagateToActivity 把系列修改传播到一个尚未开始的活动
func propagateToActivity(txRepos *repository.Repositories, activity *model.Activity, before, after *model.ActivitySeries, changes templateChanges) error {
	if scheduleChanged := propagateSchedule(activity, before, after); scheduleChanged {
		if err := txRepos.Activity.UpdateSchedule(activity); err != nil {
			return err
		}
	}

	for i := range activity.ParticipantTypes {
		slot := &activity.ParticipantTypes[i]
		if slot.SeriesParticipantTypeId == nil {
			continue
		}
		tplId := *slot.SeriesParticipantTypeId
		if changes.removed[tplId] {
			if len(slot.Participants) == 0 {
				if err := txRepos.Activity.DeleteParticipantType(slot.ID); err != nil {
					return err
				}
			} else if err := txRepos.Activity.UnlinkParticipantType(slot.ID); err != nil {
				return err
			}
			continue
		}
		old, ok := changes.updated[tplId]
		if !ok {
			continue
		}
		if propagateSlot(slot, old, templateById(after, tplId)) {
			if err := txRepos.Activity.UpdateParticipantType(slot); err != nil {
				return err
			}
		}
	}

	for _, tpl := range changes.added {
		slot := slotFromTemplate(tpl)
		slot.ActivityId = activity.ID
		if err := txRepos.Activity.CreateParticipantType(&slot); err != nil {
			return err
		}
	}
	return nil
}

func templateById(series *model.ActivitySeries, id uint) model.SeriesParticipantType {
	for _, tpl := range series.ParticipantTypes {
		if tpl.ID == id {
			return tpl
		}
	}
	return model.SeriesParticipantType{ID: id}
}

// propagateSlot 只覆盖仍等于模板旧值的字段，单独调整过的字段保持不变
func propagateSlot(slot *model.ParticipantType, old, updated model.SeriesParticipantType) bool {
	changed := false
	if slot.Role == old.Role && old.Role != updated.Role {
		slot.Role = updated.Role
		changed = true
	}
	if ptr.Equal(slot.MaxParticipants, old.MaxParticipants) && !ptr.Equal(old.MaxParticipants, updated.MaxParticipants) {
		slot.MaxParticipants = ptr.Clone(updated.MaxParticipants)
		changed = true
	}
	if slot.Description == old.Description && old.Description != updated.Description {
		slot.Description = updated.Description
		changed = true
	}
	return changed
}

// propagateSchedule 同步时长和描述，描述同样遵守单独调整不覆盖的规则
func propagateSchedule(activity *model.Activity, before, after *model.ActivitySeries) bool {
	changed := false
	oldDuration, oldHas := before.Duration()
	newDuration, newHas := after.Duration()
	if oldHas != newHas || oldDuration != newDuration {
		if !newHas {
			newDuration = model.DefaultActivityDuration
		}
		activity.EndAt = activity.StartAt.Add(newDuration)
		activity.HasDuration = newHas
		changed = true
	}
	if activity.Description == before.Description && before.Description != after.Description {
		activity.Description = after.Description
		changed = true
	}
	return changed
}

// AddParticipant 报名活动
// 名额行加锁后再检查容量，防止并发报名超出上限
func (s *activityService) AddParticipant(ctx context.Context, req request.JoinActivityRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	now := s.now()
	var groupId uint
	err := s.repos.Transaction(func(txRepos *repository.Repositories) error {
		pt, err := txRepos.Activity.LockParticipantType(req.ParticipantTypeId)
		if err != nil {
			return err
		}
		if pt.ActivityId != req.ActivityId {
			return errorx.Validation("名额 %d 不属于活动 %d", pt.ID, req.ActivityId)
		}
		activity, err := txRepos.Activity.FindById(req.ActivityId)
		if err != nil {
			return err
		}
		if activity.IsDisabled {
			return errorx.Validation("活动已停用")
		}
		if !activity.StartAt.After(now) {
			return errorx.Validation("活动已经开始")
		}

		place, err := txRepos.Group.FindPlaceById(activity.PlaceId)
		if err != nil {
			return err
		}
		groupId = place.GroupId
		member, err := txRepos.GroupMember.FindByGroupAndUser(place.GroupId, req.UserId)
		if err != nil {
			if errorx.IsNotFound(err) {
				return errorx.Validation("用户不是小组成员")
			}
			return err
		}
		if !member.HasRole(pt.Role) {
			return errorx.Validation("需要角色 %s 才能报名", pt.Role)
		}

		if _, err := txRepos.Activity.FindParticipant(req.ActivityId, req.UserId); err == nil {
			return errorx.Validation("已经报名该活动")
		} else if !errorx.IsNotFound(err) {
			return err
		}
		if pt.MaxParticipants != nil {
			n, err := txRepos.Activity.CountParticipants(pt.ID)
			if err != nil {
				return err
			}
			if n >= int64(*pt.MaxParticipants) {
				return errorx.Validation("名额已满")
			}
		}
		return txRepos.Activity.CreateParticipant(&model.ActivityParticipant{
			ActivityId:        req.ActivityId,
			ParticipantTypeId: pt.ID,
			UserId:            req.UserId,
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, mq.NewEvent(mq.EventParticipantJoined, groupId, req.UserId, req.ActivityId, now))
	return nil
}

// RemoveParticipant 取消报名，已开始的活动不能取消
func (s *activityService) RemoveParticipant(ctx context.Context, activityId, userId uint) error {
	now := s.now()
	return s.repos.Transaction(func(txRepos *repository.Repositories) error {
		activity, err := txRepos.Activity.FindById(activityId)
		if err != nil {
			return err
		}
		if !activity.StartAt.After(now) {
			return errorx.Validation("活动已经开始")
		}
		n, err := txRepos.Activity.DeleteParticipant(activityId, userId)
		if err != nil {
			return err
		}
		if n == 0 {
			return errorx.Newf(errorx.CodeNotFound, "用户 %d 未报名活动 %d", userId, activityId)
		}
		return nil
	})
}

// publishReconcile 对账产生变更时发布事件
func (s *activityService) publishReconcile(ctx context.Context, series *model.ActivitySeries, result respond.ReconcileRespond, now time.Time) {
	if series == nil || !result.Changed() {
		return
	}
	e := mq.NewEvent(mq.EventSeriesReconciled, series.Place.GroupId, 0, series.ID, now)
	e.Payload = map[string]any{
		"created":  result.Created,
		"deleted":  result.Deleted,
		"detached": result.Detached,
	}
	s.publish(ctx, e)
}

func (s *activityService) publish(ctx context.Context, events ...mq.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		zap.L().Error("publish activity events failed", zap.Error(err))
	}
}

func writeHistory(txRepos *repository.Repositories, typus model.HistoryType, groupId, userId, objectId uint) error {
	h := &model.History{Typus: typus, GroupId: groupId, ObjectId: ptr.Of(objectId)}
	if userId != 0 {
		h.UserId = ptr.Of(userId)
	}
	return txRepos.History.Create(h)
}
