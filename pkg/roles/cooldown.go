package roles

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cooldowns throttles repeated actions per key.
type Cooldowns interface {
	// Acquire starts a cooldown of ttl for key. When one is already running it
	// returns false and the time left.
	Acquire(ctx context.Context, key string, ttl time.Duration) (remaining time.Duration, ok bool, err error)
}

// MemoryCooldowns keeps cooldowns in process memory.
type MemoryCooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{until: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryCooldowns) Acquire(_ context.Context, key string, ttl time.Duration) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if until, ok := m.until[key]; ok && now.Before(until) {
		return until.Sub(now), false, nil
	}
	m.until[key] = now.Add(ttl)
	// Expired entries are dropped lazily.
	for k, u := range m.until {
		if !now.Before(u) {
			delete(m.until, k)
		}
	}
	return 0, true, nil
}

// RedisCooldowns shares cooldowns between bot instances through Redis keys with a TTL.
type RedisCooldowns struct {
	client *goredis.Client
	prefix string
}

func NewRedisCooldowns(client *goredis.Client, prefix string) *RedisCooldowns {
	if prefix == "" {
		prefix = "modwarden:cooldown:"
	}
	return &RedisCooldowns{client: client, prefix: prefix}
}

func (r *RedisCooldowns) Acquire(ctx context.Context, key string, ttl time.Duration) (time.Duration, bool, error) {
	if r.client == nil {
		return 0, false, fmt.Errorf("redis client is nil")
	}
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, "1", ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("acquire cooldown: %w", err)
	}
	if ok {
		return 0, true, nil
	}
	left, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, false, fmt.Errorf("read cooldown ttl: %w", err)
	}
	if left < 0 {
		left = 0
	}
	return left, false, nil
}
