// Package events publishes domain events of the engine to a topic exchange.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

const Producer = "mia-welcome"

// Event names, used as routing keys.
const (
	TypeHandoffTransferred = "handoff.transferred.v1"
	TypeHandoffReleased    = "handoff.released.v1"
	TypeMessageReplied     = "message.replied.v1"
	TypeFlagsUpdated       = "flags.updated.v1"
)

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
	// Event name and version, e.g. handoff.transferred.v1
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// New wraps data in an envelope stamped with a fresh id.
func New(eventType string, data any) Envelope {
	producer := Producer
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: &producer,
			Time:     time.Now().UTC(),
			Type:     eventType,
		},
		Data: data,
	}
}

// WithCorrelation sets the correlation id when one is known.
func (e Envelope) WithCorrelation(id string) Envelope {
	if id != "" {
		e.Meta.CorrelationID = &id
	}
	return e
}

type HandoffTransferred struct {
	ContactID string               `json:"contact_id"`
	Channel   conversation.Channel `json:"channel"`
	Reason    string               `json:"reason"`
	Notified  bool                 `json:"notified"`
}

type HandoffReleased struct {
	ContactID string               `json:"contact_id"`
	Channel   conversation.Channel `json:"channel"`
}

type MessageReplied struct {
	ContactID string                   `json:"contact_id"`
	Channel   conversation.Channel     `json:"channel"`
	Kind      conversation.ContentKind `json:"kind"`
	Delivered bool                     `json:"delivered"`
	Fallback  bool                     `json:"fallback"`
}

type FlagsUpdated struct {
	BotEnabled *bool                 `json:"bot_enabled,omitempty"`
	Channel    *conversation.Channel `json:"channel,omitempty"`
	Enabled    *bool                 `json:"enabled,omitempty"`
}

// Publisher emits envelopes under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

// Nop drops every event; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Envelope) error { return nil }
func (Nop) Close() error                                    { return nil }
