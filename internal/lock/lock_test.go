package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"covercat/internal/lock"
	"covercat/internal/testsupport"
)

func exerciseLocker(t *testing.T, locker lock.Locker) {
	t.Helper()
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "cover-1")
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if _, err := locker.TryLock(ctx, "cover-1"); !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	other, err := locker.TryLock(ctx, "cover-2")
	if err != nil {
		t.Fatalf("TryLock on other key failed: %v", err)
	}
	other()

	release()
	release()

	again, err := locker.TryLock(ctx, "cover-1")
	if err != nil {
		t.Fatalf("TryLock after release failed: %v", err)
	}
	again()
}

func TestLocalLocker(t *testing.T) {
	exerciseLocker(t, lock.NewLocal())
}

func TestRedisLocker(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseLocker(t, lock.NewRedis(client, "test:", time.Minute))
}

func TestRedisLockerExpiredLeaseIsNotReleasedBySuccessor(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := lock.NewRedis(client, "test:", time.Second)
	ctx := context.Background()

	stale, err := locker.TryLock(ctx, "cover-1")
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	fresh, err := locker.TryLock(ctx, "cover-1")
	if err != nil {
		t.Fatalf("TryLock after expiry failed: %v", err)
	}
	defer fresh()

	stale()
	if !mr.Exists("test:cover-1") {
		t.Fatal("stale release removed the successor's lock")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	locker, closeFn, err := lock.FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	defer closeFn()
	if _, ok := locker.(*lock.LocalLocker); !ok {
		t.Fatalf("expected local locker, got %T", locker)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	cfg.Lock.RedisAddr = mr.Addr()

	locker, closeFn, err = lock.FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FromConfig redis failed: %v", err)
	}
	defer closeFn()
	if _, ok := locker.(*lock.RedisLocker); !ok {
		t.Fatalf("expected redis locker, got %T", locker)
	}
}
