// Package worker 周期性运行后台清扫任务（系列展开、投票到期结算）
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	myredis "karrot_server/internal/dao/redis"
	"karrot_server/internal/dto/respond"
	"karrot_server/pkg/errorx"
)

// SweepFunc 执行一次清扫
type SweepFunc func(ctx context.Context, now time.Time) (respond.SweepRespond, error)

// Sweep 一个具名的周期任务
type Sweep struct {
	Name     string
	Interval time.Duration
	Run      SweepFunc
}

// Sweeper 按各自的间隔运行清扫任务
// 配置了 LockService 时，每次运行前先抢租约，保证多进程部署下同一时刻只有一个实例在跑
type Sweeper struct {
	sweeps []Sweep
	lock   myredis.LockService
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper lock 为 nil 时不加租约
func NewSweeper(lock myredis.LockService, sweeps ...Sweep) *Sweeper {
	return &Sweeper{
		sweeps: sweeps,
		lock:   lock,
		now:    time.Now,
	}
}

// Names 已注册的清扫任务
func (s *Sweeper) Names() []string {
	names := make([]string, 0, len(s.sweeps))
	for _, sw := range s.sweeps {
		names = append(names, sw.Name)
	}
	return names
}

// Start 为每个任务启动一个协程，启动时立即运行一次
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, sw := range s.sweeps {
		s.wg.Add(1)
		go s.loop(ctx, sw)
	}
	zap.L().Info("sweeper started", zap.Strings("sweeps", s.Names()))
}

// Stop 取消所有任务并等待正在运行的清扫结束
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	zap.L().Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, sw Sweep) {
	defer s.wg.Done()
	interval := sw.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.run(ctx, sw); err != nil {
			zap.L().Error("sweep failed", zap.String("sweep", sw.Name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce 立即运行指定任务，供运维接口手动触发
func (s *Sweeper) RunOnce(ctx context.Context, name string) (respond.SweepRespond, error) {
	for _, sw := range s.sweeps {
		if sw.Name == name {
			return s.run(ctx, sw)
		}
	}
	return respond.SweepRespond{Name: name}, errorx.Newf(errorx.CodeNotFound, "未知的清扫任务 %q", name)
}

func (s *Sweeper) run(ctx context.Context, sw Sweep) (respond.SweepRespond, error) {
	runId := uuid.NewString()
	log := zap.L().With(zap.String("sweep", sw.Name), zap.String("runId", runId))

	if s.lock != nil {
		key := myredis.SweepLockKey(sw.Name)
		ttl := sw.Interval
		if ttl < time.Minute {
			ttl = time.Minute
		}
		ok, err := s.lock.TryLock(ctx, key, runId, ttl)
		if err != nil {
			return respond.SweepRespond{Name: sw.Name, RunId: runId}, err
		}
		if !ok {
			log.Debug("sweep lease held by another instance")
			return respond.SweepRespond{Name: sw.Name, RunId: runId, Skipped: true}, nil
		}
		defer func() {
			// 原 ctx 可能已取消，释放租约用新的 ctx
			unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.lock.Unlock(unlockCtx, key, runId); err != nil {
				log.Warn("release sweep lease failed", zap.Error(err))
			}
		}()
	}

	start := s.now()
	summary, err := sw.Run(ctx, start)
	summary.Name = sw.Name
	summary.RunId = runId
	if err != nil {
		return summary, err
	}
	log.Info("sweep finished",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Duration("cost", s.now().Sub(start)),
	)
	return summary, nil
}
