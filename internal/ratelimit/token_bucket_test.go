package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, capacity int, window time.Duration) (*TokenBucket, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := New(client, Config{Capacity: capacity, Window: window})
	if err != nil {
		t.Fatalf("new token bucket: %v", err)
	}

	now := time.Unix(1700000000, 0)
	bucket.now = func() time.Time { return now }
	return bucket, &now
}

func TestTokenBucketThrottlesAfterCapacity(t *testing.T) {
	bucket, now := newTestBucket(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := bucket.Allow(ctx, "pixel_func1-arm")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("expected call %d to be allowed", i)
		}
	}

	decision, err := bucket.Allow(ctx, "pixel_func1-arm")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected third call to be throttled")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 30*time.Second {
		t.Fatalf("expected retry-after within half a window, got %v", decision.RetryAfter)
	}

	*now = now.Add(45 * time.Second)
	decision, err = bucket.Allow(ctx, "pixel_func1-arm")
	if err != nil {
		t.Fatalf("allow after refill: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected a refilled token after most of a window")
	}
}

func TestTokenBucketSubjectsAreIndependent(t *testing.T) {
	bucket, _ := newTestBucket(t, 1, time.Minute)
	ctx := context.Background()

	if d, err := bucket.Allow(ctx, "pixel_func1-x86"); err != nil || !d.Allowed {
		t.Fatalf("expected first function allowed, got %+v err=%v", d, err)
	}
	if d, err := bucket.Allow(ctx, "pixel_func2-x86"); err != nil || !d.Allowed {
		t.Fatalf("expected second function allowed, got %+v err=%v", d, err)
	}
	if d, err := bucket.Allow(ctx, "pixel_func1-x86"); err != nil || d.Allowed {
		t.Fatalf("expected first function throttled, got %+v err=%v", d, err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	if _, err := New(client, Config{Capacity: 0, Window: time.Second}); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := New(client, Config{Capacity: 1}); err == nil {
		t.Fatal("expected error for zero window")
	}
	if _, err := New(nil, Config{Capacity: 1, Window: time.Second}); err == nil {
		t.Fatal("expected error for nil client")
	}
}
