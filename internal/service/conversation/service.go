package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
)

// HistoryWindow is the number of prior turns handed to generation.
const HistoryWindow = 10

const maxModeAttempts = 3

var (
	ErrContactRequired = errors.New("contact id is required")
	ErrInvalidChannel  = errors.New("invalid channel")
)

// Repository is the slice of storage the service needs.
type Repository interface {
	storage.TurnLog
	storage.StateStore
}

// Service encapsulates conversation state management.
type Service struct {
	repo   Repository
	locks  *KeyedLock
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the service over a repository.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		locks:  NewKeyedLock(),
		logger: logger.With("component", "conversation"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Lock serialises work on one conversation. Waiters are served in arrival order.
func (s *Service) Lock(ctx context.Context, key conversation.Key) (func(), error) {
	return s.locks.Lock(ctx, key)
}

// CurrentMode returns the handoff mode of the key. Unknown keys and read
// failures resolve to ai so customers are never left unanswered.
func (s *Service) CurrentMode(ctx context.Context, key conversation.Key) conversation.Mode {
	state, err := s.repo.GetState(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("read state failed, assuming ai", "key", key.String(), "error", err)
		}
		return conversation.ModeAI
	}
	if state.Mode == "" {
		return conversation.ModeAI
	}
	return state.Mode
}

// AppendTurn appends a turn to the transcript.
func (s *Service) AppendTurn(ctx context.Context, turn conversation.Turn) (conversation.Turn, error) {
	if turn.ContactID == "" {
		return conversation.Turn{}, ErrContactRequired
	}
	if !turn.Channel.Valid() {
		return conversation.Turn{}, fmt.Errorf("%w: %q", ErrInvalidChannel, turn.Channel)
	}
	if turn.Mode == "" {
		turn.Mode = conversation.ModeAI
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	saved, err := s.repo.AppendTurn(ctx, turn)
	if err != nil {
		return conversation.Turn{}, fmt.Errorf("append %s turn for %s: %w", turn.Role, turn.Key(), err)
	}
	return saved, nil
}

// BulkSetMode moves the key to mode. Moving to human also rewrites the mode of
// its stored turns.
// It reports false when the key was already in mode.
func (s *Service) BulkSetMode(ctx context.Context, key conversation.Key, mode conversation.Mode, reason string) (bool, error) {
	for attempt := 0; attempt < maxModeAttempts; attempt++ {
		state, err := s.repo.GetState(ctx, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			state = conversation.DefaultState(key)
		case err != nil:
			return false, fmt.Errorf("read state for %s: %w", key, err)
		}

		if state.Mode == mode {
			return false, nil
		}

		_, err = s.repo.CompareAndSetMode(ctx, key, state.Version, mode, reason)
		if errors.Is(err, storage.ErrVersionConflict) {
			s.logger.Debug("mode update raced, retrying", "key", key.String(), "attempt", attempt+1)
			continue
		}
		if err != nil {
			return false, fmt.Errorf("set mode for %s: %w", key, err)
		}

		s.logger.Info("mode changed", "key", key.String(), "mode", mode, "reason", reason)
		return true, nil
	}
	return false, fmt.Errorf("set mode for %s: %w", key, storage.ErrVersionConflict)
}

// RecentTurns returns up to n turns of the key, oldest first.
func (s *Service) RecentTurns(ctx context.Context, key conversation.Key, n int) ([]conversation.Turn, error) {
	turns, err := s.repo.RecentTurns(ctx, key, n)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", key, err)
	}
	return turns, nil
}

// StatsSince counts user messages and active conversations since the given instant.
func (s *Service) StatsSince(ctx context.Context, since time.Time) (storage.Stats, error) {
	return s.repo.CountSince(ctx, since)
}
