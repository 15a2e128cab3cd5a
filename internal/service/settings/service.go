package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
)

const flagsLoadKey = "flags"

// Service serves the enablement flags through a short-lived cache. Writes go
// straight to the store and drop the cached copy.
type Service struct {
	store  storage.FlagStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	loads  singleflight.Group

	mu         sync.Mutex
	cached     storage.Flags
	expiresAt  time.Time
	generation uint64
}

// NewService creates the flag service. A zero ttl disables caching.
func NewService(store storage.FlagStore, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "settings"),
		now:    time.Now,
	}
}

// Flags returns the current flags. When the store cannot be read the last
// known value is served, or the defaults if nothing was ever loaded.
// The store is read outside the mutex and concurrent misses share one load.
func (s *Service) Flags(ctx context.Context) storage.Flags {
	s.mu.Lock()
	now := s.now()
	if s.ttl > 0 && now.Before(s.expiresAt) {
		cached := s.cached
		s.mu.Unlock()
		return cached
	}
	generation := s.generation
	s.mu.Unlock()

	v, err, _ := s.loads.Do(flagsLoadKey, func() (any, error) {
		return s.store.LoadFlags(ctx)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("load flags failed", "error", err)
		if s.cached.Channels != nil {
			return s.cached
		}
		return storage.DefaultFlags()
	}

	flags := v.(storage.Flags)
	// A write since the load started makes the result stale for caching.
	if generation == s.generation {
		s.cached = flags
		s.expiresAt = now.Add(s.ttl)
	}
	return flags
}

// BotEnabled reports the global bot switch.
func (s *Service) BotEnabled(ctx context.Context) bool {
	return s.Flags(ctx).BotEnabled
}

// ChannelEnabled reports whether inbound traffic of ch is accepted.
func (s *Service) ChannelEnabled(ctx context.Context, ch conversation.Channel) bool {
	return s.Flags(ctx).ChannelEnabled(ch)
}

// SetBotEnabled flips the global bot switch.
func (s *Service) SetBotEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetBotEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("set bot enabled: %w", err)
	}
	s.invalidate()
	s.logger.Info("bot switch updated", "enabled", enabled)
	return nil
}

// SetChannelEnabled flips one channel switch.
func (s *Service) SetChannelEnabled(ctx context.Context, ch conversation.Channel, enabled bool) error {
	if !ch.Valid() {
		return fmt.Errorf("unknown channel %q", ch)
	}
	if err := s.store.SetChannelEnabled(ctx, ch, enabled); err != nil {
		return fmt.Errorf("set channel enabled: %w", err)
	}
	s.invalidate()
	s.logger.Info("channel switch updated", "channel", ch, "enabled", enabled)
	return nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	s.expiresAt = time.Time{}
	s.generation++
	s.mu.Unlock()
	s.loads.Forget(flagsLoadKey)
}
