package rate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/harborapp/backend/internal/repo/redis"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestAllowSwipeBlocksPastTenSecondWindow(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), 100, 3)
	ctx := context.Background()
	userID := int64(501)

	for i := 0; i < 3; i++ {
		_, allowed, err := limiter.AllowSwipe(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error on swipe %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("swipe %d must be allowed", i+1)
		}
	}

	retryAfter, allowed, err := limiter.AllowSwipe(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error on blocked swipe: %v", err)
	}
	if allowed {
		t.Fatal("fourth swipe inside 10s must be blocked")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", retryAfter)
	}
}

func TestAllowSwipeRecoversAfterWindowExpiry(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), 0, 2)
	ctx := context.Background()
	userID := int64(502)

	for i := 0; i < 2; i++ {
		if _, allowed, err := limiter.AllowSwipe(ctx, userID); err != nil || !allowed {
			t.Fatalf("swipe %d must pass: allowed=%t err=%v", i+1, allowed, err)
		}
	}
	if _, allowed, _ := limiter.AllowSwipe(ctx, userID); allowed {
		t.Fatal("third swipe must be blocked")
	}

	mr.FastForward(swipe10SecWindow)

	if _, allowed, err := limiter.AllowSwipe(ctx, userID); err != nil || !allowed {
		t.Fatalf("swipe after window expiry must pass: allowed=%t err=%v", allowed, err)
	}
}

func TestAllowSwipeWithZeroLimitsIsUnbounded(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	limiter := NewLimiter(redrepo.NewRateRepo(client), 0, 0)
	for i := 0; i < 50; i++ {
		if _, allowed, err := limiter.AllowSwipe(context.Background(), 503); err != nil || !allowed {
			t.Fatalf("unbounded limiter must always allow: allowed=%t err=%v", allowed, err)
		}
	}
}
