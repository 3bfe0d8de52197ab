package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ad-itya07/Dionysus/internal/metrics"
)

// Budget tracks when a GitHub credential may issue requests again. Every
// Host sharing a credential key pauses once any of them observes an
// exhausted quota.
type Budget interface {
	// Wait blocks until the credential identified by key may be used.
	Wait(ctx context.Context, key string) error
	// Pause marks key as exhausted until the given time.
	Pause(ctx context.Context, key string, until time.Time) error
}

// CredentialKey derives a budget key from a token without exposing it.
func CredentialKey(token string) string {
	if token == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:8])
}

// LocalBudget is an in-process Budget.
type LocalBudget struct {
	mu    sync.Mutex
	until map[string]time.Time
}

// NewLocalBudget creates an empty in-process budget.
func NewLocalBudget() *LocalBudget {
	return &LocalBudget{until: make(map[string]time.Time)}
}

// Wait sleeps until any pause recorded for key has elapsed.
func (b *LocalBudget) Wait(ctx context.Context, key string) error {
	b.mu.Lock()
	until := b.until[key]
	b.mu.Unlock()
	return sleepUntil(ctx, until)
}

// Pause records that key is exhausted until the given time. An earlier
// pause never shortens a later one.
func (b *LocalBudget) Pause(_ context.Context, key string, until time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if until.After(b.until[key]) {
		b.until[key] = until
	}
	return nil
}

// RedisBudget shares pauses across processes through Redis so that workers
// using the same credential back off together. Redis failures degrade to
// the embedded local budget.
type RedisBudget struct {
	client *goredis.Client
	prefix string
	local  *LocalBudget
	logger *slog.Logger
}

// NewRedisBudget connects to addr and verifies the connection.
func NewRedisBudget(ctx context.Context, addr, prefix string, logger *slog.Logger) (*RedisBudget, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "dionysus:github:pause:"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisBudget{client: client, prefix: prefix, local: NewLocalBudget(), logger: logger}, nil
}

// Close releases the Redis connection.
func (b *RedisBudget) Close() error {
	return b.client.Close()
}

// Wait sleeps until the shared pause for key has elapsed.
func (b *RedisBudget) Wait(ctx context.Context, key string) error {
	if err := b.local.Wait(ctx, key); err != nil {
		return err
	}
	val, err := b.client.Get(ctx, b.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			b.logger.Warn("reading shared rate limit pause", "key", key, "error", err)
		}
		return nil
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil
	}
	return sleepUntil(ctx, time.UnixMilli(ms))
}

// Pause publishes the pause to Redis with an expiry matching the pause.
func (b *RedisBudget) Pause(ctx context.Context, key string, until time.Time) error {
	_ = b.local.Pause(ctx, key, until)
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.prefix+key, strconv.FormatInt(until.UnixMilli(), 10), ttl).Err(); err != nil {
		b.logger.Warn("publishing shared rate limit pause", "key", key, "error", err)
	}
	return nil
}

func sleepUntil(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	metrics.RecordRateLimitWait(d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
