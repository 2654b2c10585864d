package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/accounts/internal/config"
	"go.uber.org/zap/zaptest"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerIsExclusiveUntilReleased(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	locker := NewLocker(client)

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, err := locker.TryLock(ctx, "k", time.Minute); err != nil || ok {
		t.Fatalf("second lock should fail: ok=%v err=%v", ok, err)
	}

	if err := locker.Release(ctx, "k", "not-the-token"); err != nil {
		t.Fatalf("release with wrong token: %v", err)
	}
	if _, ok, _ := locker.TryLock(ctx, "k", time.Minute); ok {
		t.Fatalf("wrong token must not release the lock")
	}

	if err := locker.Release(ctx, "k", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, err := locker.TryLock(ctx, "k", time.Minute); err != nil || !ok {
		t.Fatalf("lock after release: ok=%v err=%v", ok, err)
	}
}

func TestLockerExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	locker := NewLocker(client)

	if _, ok, _ := locker.TryLock(ctx, "k", time.Second); !ok {
		t.Fatalf("expected lock")
	}
	mr.FastForward(2 * time.Second)
	if _, ok, _ := locker.TryLock(ctx, "k", time.Second); !ok {
		t.Fatalf("expected lock after expiry")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	bucket := NewTokenBucket(client)

	start := time.Unix(1700000000, 0)
	mr.SetTime(start)

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "b", 1, 2)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := bucket.Allow(ctx, "b", 1, 2)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatalf("third request should be limited")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Second {
		t.Fatalf("unexpected retry after %s", res.RetryAfter)
	}

	mr.SetTime(start.Add(1500 * time.Millisecond))
	res, err = bucket.Allow(ctx, "b", 1, 2)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("request after refill should be allowed")
	}
}

func TestChargeLimiter(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	mr.SetTime(time.Unix(1700000000, 0))

	limiter := NewChargeLimiter(ChargeLimiterParams{
		Cfg:   config.Config{ChargeRateLimit: config.ChargeRateLimitConfig{Enabled: true, Rate: 0.5, Burst: 1}},
		Log:   zaptest.NewLogger(t),
		Redis: client,
	})

	if err := limiter.Allow(ctx, "org-1"); err != nil {
		t.Fatalf("first charge: %v", err)
	}
	err := limiter.Allow(ctx, "org-1")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if err := limiter.Allow(ctx, "org-2"); err != nil {
		t.Fatalf("other organizations are independent: %v", err)
	}

	release, err := limiter.Lock(ctx, "org-1", time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := limiter.Lock(ctx, "org-1", time.Minute); !errors.Is(err, ErrChargeInProgress) {
		t.Fatalf("expected in-progress, got %v", err)
	}
	release()
	if _, err := limiter.Lock(ctx, "org-1", time.Minute); err != nil {
		t.Fatalf("lock after release: %v", err)
	}
}

func TestChargeLimiterWithoutRedisAllowsEverything(t *testing.T) {
	limiter := NewChargeLimiter(ChargeLimiterParams{
		Cfg: config.Config{ChargeRateLimit: config.ChargeRateLimitConfig{Enabled: true, Rate: 1, Burst: 1}},
		Log: zaptest.NewLogger(t),
	})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "org"); err != nil {
			t.Fatalf("allow: %v", err)
		}
		release, err := limiter.Lock(ctx, "org", time.Second)
		if err != nil {
			t.Fatalf("lock: %v", err)
		}
		release()
	}
}
