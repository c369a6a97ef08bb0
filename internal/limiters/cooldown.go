package limiters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCooldownUnavailable indicates the cooldown backend is unreachable.
var ErrCooldownUnavailable = errors.New("cooldown backend unavailable")

// Cooldown remembers until when an operation must not be attempted.
type Cooldown interface {
	// Block opens (or extends) a window of d starting now. d <= 0 is a no-op.
	Block(ctx context.Context, d time.Duration) error
	// Remaining returns how much of the window is left, or 0.
	Remaining(ctx context.Context) (time.Duration, error)
	// Reset closes the window.
	Reset(ctx context.Context) error
}

// MemoryCooldown is a process-local [Cooldown].
type MemoryCooldown struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

// NewMemoryCooldown creates a [MemoryCooldown]. now may be nil.
func NewMemoryCooldown(now func() time.Time) *MemoryCooldown {
	if now == nil {
		now = time.Now
	}
	return &MemoryCooldown{now: now}
}

func (c *MemoryCooldown) Block(_ context.Context, d time.Duration) error {
	if c == nil || d <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if until.After(c.until) {
		c.until = until
	}
	return nil
}

func (c *MemoryCooldown) Remaining(context.Context) (time.Duration, error) {
	if c == nil {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	left := c.until.Sub(c.now())
	if left <= 0 {
		return 0, nil
	}
	return left, nil
}

func (c *MemoryCooldown) Reset(context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = time.Time{}
	return nil
}

// RedisCooldown keeps the window as a key with a TTL.
type RedisCooldown struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisCooldown creates a [RedisCooldown] using key "<prefix>:<scope>:cooldown".
func NewRedisCooldown(client redis.UniversalClient, prefix, scope string) *RedisCooldown {
	if prefix == "" {
		prefix = "gs"
	}
	if scope == "" {
		scope = "default"
	}
	return &RedisCooldown{redis: client, key: prefix + ":" + scope + ":cooldown"}
}

func (c *RedisCooldown) Block(ctx context.Context, d time.Duration) error {
	if c == nil || d <= 0 {
		return nil
	}
	current, err := c.Remaining(ctx)
	if err != nil {
		return err
	}
	if current >= d {
		return nil
	}
	if err := c.redis.Set(ctx, c.key, "1", d).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	return nil
}

func (c *RedisCooldown) Remaining(ctx context.Context) (time.Duration, error) {
	if c == nil {
		return 0, nil
	}
	ttl, err := c.redis.PTTL(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	// Missing keys report negative TTLs.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (c *RedisCooldown) Reset(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.redis.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	return nil
}
