package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	myredis "karrot_server/internal/dao/redis"
	"karrot_server/internal/dto/respond"
	"karrot_server/pkg/errorx"
)

func counting(n *int64) SweepFunc {
	return func(ctx context.Context, now time.Time) (respond.SweepRespond, error) {
		atomic.AddInt64(n, 1)
		return respond.SweepRespond{Processed: 2}, nil
	}
}

func TestRunOnce(t *testing.T) {
	var n int64
	s := NewSweeper(nil, Sweep{Name: "votings", Interval: time.Minute, Run: counting(&n)})

	got, err := s.RunOnce(context.Background(), "votings")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "votings" || got.RunId == "" || got.Processed != 2 || n != 1 {
		t.Fatalf("summary %+v, runs %d", got, n)
	}
	if _, err := s.RunOnce(context.Background(), "nope"); !errorx.IsNotFound(err) {
		t.Fatalf("unknown sweep: %v", err)
	}
}

func TestLeaseSkipsWhenHeld(t *testing.T) {
	var n int64
	lock := myredis.NewMemoryCache()
	s := NewSweeper(lock, Sweep{Name: "series", Interval: time.Hour, Run: counting(&n)})
	ctx := context.Background()

	if ok, _ := lock.TryLock(ctx, myredis.SweepLockKey("series"), "other", time.Hour); !ok {
		t.Fatal("could not take lease")
	}
	got, err := s.RunOnce(ctx, "series")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Skipped || n != 0 {
		t.Fatalf("sweep ran while lease held: %+v", got)
	}

	_ = lock.Unlock(ctx, myredis.SweepLockKey("series"), "other")
	if got, _ := s.RunOnce(ctx, "series"); got.Skipped || n != 1 {
		t.Fatalf("sweep did not run: %+v", got)
	}
	// 运行结束后释放租约
	if got, _ := s.RunOnce(ctx, "series"); got.Skipped || n != 2 {
		t.Fatalf("lease not released: %+v", got)
	}
}

func TestRunErrorKeepsSummary(t *testing.T) {
	boom := errors.New("boom")
	s := NewSweeper(nil, Sweep{Name: "x", Run: func(ctx context.Context, now time.Time) (respond.SweepRespond, error) {
		return respond.SweepRespond{Failed: 1}, boom
	}})
	got, err := s.RunOnce(context.Background(), "x")
	if !errors.Is(err, boom) || got.Failed != 1 || got.Name != "x" {
		t.Fatalf("summary %+v, err %v", got, err)
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	var n int64
	s := NewSweeper(nil, Sweep{Name: "votings", Interval: time.Hour, Run: counting(&n)})
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&n) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if atomic.LoadInt64(&n) != 1 {
		t.Fatalf("runs = %d", n)
	}
	// 重复 Stop 无副作用
	s.Stop()
}
