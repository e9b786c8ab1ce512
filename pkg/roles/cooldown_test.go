package roles

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestMemoryCooldowns(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCooldowns()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, ok, _ := c.Acquire(ctx, "u1", time.Minute); !ok {
		t.Fatalf("first acquire should succeed")
	}
	now = now.Add(20 * time.Second)
	left, ok, _ := c.Acquire(ctx, "u1", time.Minute)
	if ok || left != 40*time.Second {
		t.Fatalf("expected 40s remaining, got ok=%v left=%v", ok, left)
	}
	if _, ok, _ := c.Acquire(ctx, "u2", time.Minute); !ok {
		t.Fatalf("keys are independent")
	}
	now = now.Add(41 * time.Second)
	if _, ok, _ := c.Acquire(ctx, "u1", time.Minute); !ok {
		t.Fatalf("cooldown should have expired")
	}
}

func TestRedisCooldowns(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	c := NewRedisCooldowns(client, "")
	ctx := context.Background()

	if _, ok, err := c.Acquire(ctx, "g1/u1", time.Minute); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if !mr.Exists("modwarden:cooldown:g1/u1") {
		t.Fatalf("expected prefixed key in redis")
	}

	left, ok, err := c.Acquire(ctx, "g1/u1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should be throttled: ok=%v err=%v", ok, err)
	}
	if left <= 0 || left > time.Minute {
		t.Fatalf("unexpected remaining %v", left)
	}

	mr.FastForward(61 * time.Second)
	if _, ok, err := c.Acquire(ctx, "g1/u1", time.Minute); err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}
}
