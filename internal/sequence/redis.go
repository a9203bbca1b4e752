package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "distline:seq"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
}

// RedisAllocator allocates with INCR so several server instances can share
// one sequence. A production that fails after allocation leaves a gap; the
// number is never reused.
type RedisAllocator struct {
	store cmdable
	raw   *redis.Client
	key   string
	name  string
}

func NewRedisAllocator(ctx context.Context, url, name string) (*RedisAllocator, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a := newRedisAllocator(raw, name)
	a.raw = raw
	return a, nil
}

func newRedisAllocator(store cmdable, name string) *RedisAllocator {
	if name == "" {
		name = DefaultName
	}
	return &RedisAllocator{store: store, key: keyNamespace + ":" + name, name: name}
}

func (a *RedisAllocator) Key() string { return a.key }

// Seed makes sure the counter is at least floor.
func (a *RedisAllocator) Seed(ctx context.Context, floor int64) error {
	if _, err := a.store.SetNX(ctx, a.key, floor, 0).Result(); err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	raw, err := a.store.Get(ctx, a.key).Result()
	if err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}
	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("sequence %s holds %q: %w", a.key, raw, err)
	}
	if current < floor {
		return a.store.Set(ctx, a.key, floor, 0).Err()
	}
	return nil
}

// Next increments the shared counter and, when a transaction is given,
// raises the local counter row to match so the SQL allocator can take over.
func (a *RedisAllocator) Next(ctx context.Context, tx *sql.Tx) (int64, error) {
	next, err := a.store.Incr(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr sequence: %w", err)
	}
	if tx != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE production_sequence SET value = MAX(value, ?) WHERE name=?`, next, a.name); err != nil {
			return 0, fmt.Errorf("sync sequence row: %w", err)
		}
	}
	return next, nil
}

func (a *RedisAllocator) Close() error {
	if a.raw == nil {
		return nil
	}
	return a.raw.Close()
}
