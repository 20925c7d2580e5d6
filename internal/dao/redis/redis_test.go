package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	if got := ThresholdKey(42); got != "karrot:trust_threshold:42" {
		t.Fatalf("ThresholdKey = %q", got)
	}
	if got := SweepLockKey("votings"); got != "karrot:sweep_lock:votings" {
		t.Fatalf("SweepLockKey = %q", got)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Get(ctx, "k"); v != "v" {
		t.Fatalf("Get = %q", v)
	}
	now = now.Add(time.Minute)
	if v, _ := c.Get(ctx, "k"); v != "" {
		t.Fatalf("expired key returned %q", v)
	}
	_ = c.Set(ctx, "k", "v", 0)
	_ = c.Delete(ctx, "k")
	if v, _ := c.Get(ctx, "k"); v != "" {
		t.Fatalf("deleted key returned %q", v)
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	if ok, _ := c.TryLock(ctx, "lock", "a", time.Minute); !ok {
		t.Fatal("first lock should succeed")
	}
	if ok, _ := c.TryLock(ctx, "lock", "b", time.Minute); ok {
		t.Fatal("lock is held")
	}
	// 错误的 token 不能释放
	_ = c.Unlock(ctx, "lock", "b")
	if ok, _ := c.TryLock(ctx, "lock", "b", time.Minute); ok {
		t.Fatal("lock released by wrong token")
	}
	_ = c.Unlock(ctx, "lock", "a")
	if ok, _ := c.TryLock(ctx, "lock", "b", time.Minute); !ok {
		t.Fatal("lock should be free after unlock")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := c.TryLock(ctx, "lock", "c", time.Minute); !ok {
		t.Fatal("expired lease should be taken over")
	}
}

func TestWorkerPoolRunsTasks(t *testing.T) {
	// NewClient 不会立即建立连接
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), 2, 4)

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		rc.SubmitTask(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		})
	}
	rc.SubmitTask(func() { panic("boom") })
	wg.Wait()
	if err := rc.Close(); err != nil {
		t.Fatal(err)
	}
	if n != 20 {
		t.Fatalf("ran %d tasks", n)
	}

	// 关闭后同步执行
	ran := false
	rc.SubmitTask(func() { ran = true })
	if !ran {
		t.Fatal("task after close not executed")
	}
}
