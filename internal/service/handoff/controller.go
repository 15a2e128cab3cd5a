package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/metrics"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/events"
)

const (
	DefaultSummaryTurns = 10
	summaryLineChars    = 100
	emptySummary        = "Sem histórico"
)

// Conversations is the slice of the conversation service the controller needs.
type Conversations interface {
	BulkSetMode(ctx context.Context, key conversation.Key, mode conversation.Mode, reason string) (bool, error)
	RecentTurns(ctx context.Context, key conversation.Key, n int) ([]conversation.Turn, error)
}

// Notifier delivers text to a contact on a channel.
type Notifier interface {
	Send(ctx context.Context, ch conversation.Channel, contactID, text string) bool
}

// Operator addresses the person who takes over transferred conversations.
type Operator struct {
	ContactID string
	Channel   conversation.Channel
}

// Is reports whether the inbound key comes from the operator line.
func (o Operator) Is(key conversation.Key) bool {
	return o.ContactID != "" && key.Channel == o.Channel && key.ContactID == o.ContactID
}

// Controller performs the ai <-> human transitions.
type Controller struct {
	conversations Conversations
	notifier      Notifier
	publisher     events.Publisher
	operator      Operator
	summaryTurns  int
	logger        *slog.Logger
}

// NewController wires a controller. A nil publisher drops events.
func NewController(conversations Conversations, notifier Notifier, publisher events.Publisher, operator Operator, summaryTurns int, logger *slog.Logger) *Controller {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if summaryTurns <= 0 {
		summaryTurns = DefaultSummaryTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		conversations: conversations,
		notifier:      notifier,
		publisher:     publisher,
		operator:      operator,
		summaryTurns:  summaryTurns,
		logger:        logger.With("component", "handoff"),
	}
}

// Operator returns the configured operator address.
func (c *Controller) Operator() Operator {
	return c.operator
}

// Transfer moves key to human mode and notifies the operator once. It reports
// false when the key was already in human mode.
func (c *Controller) Transfer(ctx context.Context, key conversation.Key, reason string) (bool, error) {
	changed, err := c.conversations.BulkSetMode(ctx, key, conversation.ModeHuman, reason)
	if err != nil {
		return false, fmt.Errorf("transfer %s: %w", key, err)
	}
	if !changed {
		c.logger.Info("already with operator", "key", key.String())
		return false, nil
	}
	metrics.Handoffs.WithLabelValues(string(key.Channel)).Inc()

	turns, err := c.conversations.RecentTurns(ctx, key, c.summaryTurns)
	if err != nil {
		c.logger.Warn("load summary turns failed", "key", key.String(), "error", err)
	}

	notified := false
	if c.operator.ContactID == "" {
		c.logger.Warn("no operator configured, transfer not announced", "key", key.String())
	} else {
		notified = c.notifier.Send(ctx, c.operator.Channel, c.operator.ContactID, Notification(key, reason, turns))
		if !notified {
			c.logger.Error("operator notification failed", "key", key.String(), "operator", c.operator.ContactID)
		}
	}

	c.publish(ctx, events.TypeHandoffTransferred, events.HandoffTransferred{
		ContactID: key.ContactID,
		Channel:   key.Channel,
		Reason:    reason,
		Notified:  notified,
	}, key)

	c.logger.Info("transferred to operator", "key", key.String(), "reason", reason, "notified", notified)
	return true, nil
}

// Release returns key to ai mode.
func (c *Controller) Release(ctx context.Context, key conversation.Key) (bool, error) {
	changed, err := c.conversations.BulkSetMode(ctx, key, conversation.ModeAI, "operator release")
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	if changed {
		c.publish(ctx, events.TypeHandoffReleased, events.HandoffReleased{ContactID: key.ContactID, Channel: key.Channel}, key)
		c.logger.Info("returned to ai", "key", key.String())
	}
	return changed, nil
}

func (c *Controller) publish(ctx context.Context, eventType string, data any, key conversation.Key) {
	if err := c.publisher.Publish(ctx, eventType, events.New(eventType, data).WithCorrelation(key.String())); err != nil {
		c.logger.Warn("publish event failed", "type", eventType, "key", key.String(), "error", err)
	}
}

// Summary renders turns as "Cliente:"/"IA:" lines of at most 100 characters.
func Summary(turns []conversation.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "🤖 IA"
		if t.Role == conversation.RoleUser {
			speaker = "👤 Cliente"
		}
		text := t.Text
		if runes := []rune(text); len(runes) > summaryLineChars {
			text = string(runes[:summaryLineChars])
		}
		lines = append(lines, speaker+": "+text)
	}
	return strings.Join(lines, "\n")
}

// Notification is the message sent to the operator on transfer.
func Notification(key conversation.Key, reason string, turns []conversation.Turn) string {
	summary := Summary(turns)
	if summary == "" {
		summary = emptySummary
	}

	var b strings.Builder
	b.WriteString("🔔 *TRANSFERÊNCIA DE ATENDIMENTO*\n\n")
	fmt.Fprintf(&b, "%s *Canal:* %s\n", channelEmoji(key.Channel), strings.ToUpper(string(key.Channel)))
	fmt.Fprintf(&b, "📱 *Cliente:* %s\n", key.ContactID)
	fmt.Fprintf(&b, "⚠️ *Motivo:* %s\n\n", reason)
	fmt.Fprintf(&b, "📝 *Resumo:*\n%s\n\n---\n", summary)
	b.WriteString("✅ Para assumir o atendimento, responda ao cliente diretamente.\n")
	b.WriteString("🔄 Para retornar à IA, digite: +")
	return b.String()
}

func channelEmoji(ch conversation.Channel) string {
	switch ch {
	case conversation.ChannelInstagram:
		return "📸"
	case conversation.ChannelWeb:
		return "💻"
	default:
		return "📱"
	}
}
