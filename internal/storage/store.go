// Package storage persists transcripts, handoff state, enablement flags and the
// persona profile. Two backends share one contract: an in-memory store for local
// runs and tests, and a Postgres store for deployments.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrVersionConflict is returned when a compare-and-set lost the race.
	ErrVersionConflict = errors.New("storage: version conflict")
)

// Flags is the operator-controlled enablement state.
type Flags struct {
	BotEnabled bool                          `json:"botEnabled"`
	Channels   map[conversation.Channel]bool `json:"channels"`
}

// DefaultFlags: bot on, only WhatsApp accepted.
func DefaultFlags() Flags {
	return Flags{
		BotEnabled: true,
		Channels: map[conversation.Channel]bool{
			conversation.ChannelWhatsApp:  true,
			conversation.ChannelInstagram: false,
			conversation.ChannelWeb:       false,
		},
	}
}

// ChannelEnabled falls back to the default for channels without a stored row.
func (f Flags) ChannelEnabled(ch conversation.Channel) bool {
	if enabled, ok := f.Channels[ch]; ok {
		return enabled
	}
	return ch == conversation.ChannelWhatsApp
}

func (f Flags) clone() Flags {
	out := Flags{BotEnabled: f.BotEnabled, Channels: make(map[conversation.Channel]bool, len(f.Channels))}
	for ch, enabled := range f.Channels {
		out.Channels[ch] = enabled
	}
	return out
}

// Stats are exact counts over a time window.
type Stats struct {
	Messages      int `json:"messages"`
	Conversations int `json:"conversations"`
}

// TurnLog is the append-only transcript.
type TurnLog interface {
	// AppendTurn stores the turn. CreatedAt is clamped so timestamps never
	// decrease within a key.
	AppendTurn(ctx context.Context, turn conversation.Turn) (conversation.Turn, error)
	// RecentTurns returns up to n turns of the key, oldest first.
	RecentTurns(ctx context.Context, key conversation.Key, n int) ([]conversation.Turn, error)
	// CountSince counts user turns and distinct conversations created at or after since.
	CountSince(ctx context.Context, since time.Time) (Stats, error)
}

// StateStore holds the per-key handoff record.
type StateStore interface {
	// GetState returns ErrNotFound when the key was never transferred.
	GetState(ctx context.Context, key conversation.Key) (conversation.State, error)
	// CompareAndSetMode moves the key to mode when its version still equals
	// expected. A move to human also rewrites the mode of every stored turn of
	// the key atomically; a return to ai leaves earlier turns as recorded.
	CompareAndSetMode(ctx context.Context, key conversation.Key, expected int64, mode conversation.Mode, reason string) (conversation.State, error)
}

// FlagStore holds the enablement flags.
type FlagStore interface {
	LoadFlags(ctx context.Context) (Flags, error)
	SetBotEnabled(ctx context.Context, enabled bool) error
	SetChannelEnabled(ctx context.Context, ch conversation.Channel, enabled bool) error
}

// Store is the full persistence contract.
type Store interface {
	TurnLog
	StateStore
	FlagStore
	persona.Store
	Close()
}
