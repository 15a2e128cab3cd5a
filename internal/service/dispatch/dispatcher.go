// Package dispatch delivers replies to customers on their channel.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/metrics"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

const defaultSendTimeout = 30 * time.Second

// ErrNotConfigured is returned by senders missing credentials.
var ErrNotConfigured = errors.New("sender not configured")

// Sender delivers text on one channel.
type Sender interface {
	Send(ctx context.Context, contactID, text string) error
}

// Dispatcher routes sends to the sender registered for a channel.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[conversation.Channel]Sender
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates an empty dispatcher. Each send is bounded by timeout.
func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		senders: make(map[conversation.Channel]Sender),
		timeout: timeout,
		logger:  logger.With("component", "dispatch"),
	}
}

// Register installs s for ch.
func (d *Dispatcher) Register(ch conversation.Channel, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[ch] = s
}

// Send delivers text and reports success. Unknown channels yield false.
func (d *Dispatcher) Send(ctx context.Context, ch conversation.Channel, contactID, text string) bool {
	d.mu.RLock()
	sender, ok := d.senders[ch]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("no sender for channel", "channel", ch, "contact", contactID)
		metrics.Dispatches.WithLabelValues(string(ch), metrics.DispatchResult(false)).Inc()
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := sender.Send(ctx, contactID, text)
	metrics.Dispatches.WithLabelValues(string(ch), metrics.DispatchResult(err == nil)).Inc()
	if err != nil {
		d.logger.Error("send failed", "channel", ch, "contact", contactID, "error", err)
		return false
	}
	d.logger.Info("message sent", "channel", ch, "contact", contactID, "length", len(text))
	return true
}
