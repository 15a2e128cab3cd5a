// Package dedup drops repeated webhook deliveries of the same provider message.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// Guard remembers provider message ids for a while.
type Guard interface {
	// FirstSeen reports true the first time id is offered for ch within the TTL.
	FirstSeen(ctx context.Context, ch conversation.Channel, id string) (bool, error)
}

func dedupKey(ch conversation.Channel, id string) string {
	return "mia:dedup:" + string(ch) + ":" + id
}

// MemoryGuard keeps ids in a map with lazy expiry.
type MemoryGuard struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time
	now   func() time.Time
}

// NewMemoryGuard creates an in-process guard.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:   ttl,
		items: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (g *MemoryGuard) FirstSeen(_ context.Context, ch conversation.Channel, id string) (bool, error) {
	if id == "" {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	key := dedupKey(ch, id)
	if expires, ok := g.items[key]; ok && now.Before(expires) {
		return false, nil
	}
	g.items[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) sweep(now time.Time) {
	for key, expires := range g.items {
		if !now.Before(expires) {
			delete(g.items, key)
		}
	}
}

// RedisGuard shares the seen set between replicas with SET NX EX.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisGuard connects and validates the connection.
func NewRedisGuard(cfg RedisConfig) (*RedisGuard, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisGuard{rdb: rdb, ttl: cfg.TTL}, nil
}

func (g *RedisGuard) FirstSeen(ctx context.Context, ch conversation.Channel, id string) (bool, error) {
	if id == "" {
		return true, nil
	}
	ok, err := g.rdb.SetNX(ctx, dedupKey(ch, id), 1, g.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Close releases the client.
func (g *RedisGuard) Close() error {
	return g.rdb.Close()
}
