package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	profile *persona.MemoryStore

	mu     sync.RWMutex
	turns  map[conversation.Key][]conversation.Turn
	states map[conversation.Key]conversation.State
	flags  Flags
	now    func() time.Time
}

// NewMemoryStore creates an empty store seeded with the default flags and profile.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profile: persona.NewMemoryStore(persona.Seed()),
		turns:   make(map[conversation.Key][]conversation.Turn),
		states:  make(map[conversation.Key]conversation.State),
		flags:   DefaultFlags(),
		now:     time.Now,
	}
}

func (s *MemoryStore) AppendTurn(_ context.Context, turn conversation.Turn) (conversation.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	key := turn.Key()
	history := s.turns[key]
	if n := len(history); n > 0 && turn.CreatedAt.Before(history[n-1].CreatedAt) {
		turn.CreatedAt = history[n-1].CreatedAt
	}
	s.turns[key] = append(history, turn)
	return turn, nil
}

func (s *MemoryStore) RecentTurns(_ context.Context, key conversation.Key, n int) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.turns[key]
	if n <= 0 || len(history) == 0 {
		return nil, nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]conversation.Turn, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) CountSince(_ context.Context, since time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	for _, history := range s.turns {
		active := false
		for _, turn := range history {
			if turn.CreatedAt.Before(since) {
				continue
			}
			active = true
			if turn.Role == conversation.RoleUser {
				stats.Messages++
			}
		}
		if active {
			stats.Conversations++
		}
	}
	return stats, nil
}

func (s *MemoryStore) GetState(_ context.Context, key conversation.Key) (conversation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[key]
	if !ok {
		return conversation.State{}, ErrNotFound
	}
	return state, nil
}

func (s *MemoryStore) CompareAndSetMode(_ context.Context, key conversation.Key, expected int64, mode conversation.Mode, reason string) (conversation.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[key]
	if !ok {
		current = conversation.DefaultState(key)
	}
	if current.Version != expected {
		return current, ErrVersionConflict
	}

	next := conversation.State{
		Key:       key,
		Mode:      mode,
		Version:   expected + 1,
		Reason:    reason,
		UpdatedAt: s.now(),
	}
	s.states[key] = next

	if mode == conversation.ModeHuman {
		history := s.turns[key]
		for i := range history {
			history[i].Mode = mode
		}
	}
	return next, nil
}

func (s *MemoryStore) LoadFlags(context.Context) (Flags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags.clone(), nil
}

func (s *MemoryStore) SetBotEnabled(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.BotEnabled = enabled
	return nil
}

func (s *MemoryStore) SetChannelEnabled(_ context.Context, ch conversation.Channel, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.Channels[ch] = enabled
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (persona.Persona, error) {
	return s.profile.Load(ctx)
}

// ReplacePersona swaps the stored profile.
func (s *MemoryStore) ReplacePersona(p persona.Persona) {
	s.profile.Replace(p)
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

var _ Store = (*MemoryStore)(nil)
