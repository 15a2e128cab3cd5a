// Package orchestrator runs the per-message pipeline from a normalised inbound
// message to a recorded and delivered reply.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/metrics"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	convsvc "github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dedup"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/events"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/extract"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/handoff"
)

// TransferReason is recorded when a keyword moves a conversation to a person.
const TransferReason = "Cliente solicitou atendente"

// Conversations is the state and transcript facade.
type Conversations interface {
	Lock(ctx context.Context, key conversation.Key) (func(), error)
	CurrentMode(ctx context.Context, key conversation.Key) conversation.Mode
	AppendTurn(ctx context.Context, turn conversation.Turn) (conversation.Turn, error)
	RecentTurns(ctx context.Context, key conversation.Key, n int) ([]conversation.Turn, error)
}

// Extractor turns inbound content into text.
type Extractor interface {
	Extract(ctx context.Context, msg conversation.InboundMessage) (extract.Result, error)
}

// Generator produces a reply. It never fails; errors become an apology text.
type Generator interface {
	Generate(ctx context.Context, key conversation.Key, text string, history []conversation.Turn) string
}

// Flags exposes the enablement switches.
type Flags interface {
	BotEnabled(ctx context.Context) bool
	ChannelEnabled(ctx context.Context, ch conversation.Channel) bool
	SetBotEnabled(ctx context.Context, enabled bool) error
}

// Handoff performs mode transitions and knows the operator line.
type Handoff interface {
	Operator() handoff.Operator
	Transfer(ctx context.Context, key conversation.Key, reason string) (bool, error)
	Release(ctx context.Context, key conversation.Key) (bool, error)
}

// Dispatcher delivers text to a contact.
type Dispatcher interface {
	Send(ctx context.Context, ch conversation.Channel, contactID, text string) bool
}

// Deps groups the collaborators of the engine.
type Deps struct {
	Conversations Conversations
	Extractor     Extractor
	Generator     Generator
	Flags         Flags
	Detector      *handoff.Detector
	Handoff       Handoff
	Dispatcher    Dispatcher
	Dedup         dedup.Guard
	Publisher     events.Publisher
	Logger        *slog.Logger
}

// Engine processes inbound messages.
type Engine struct {
	conversations Conversations
	extractor     Extractor
	generator     Generator
	flags         Flags
	detector      *handoff.Detector
	handoff       Handoff
	dispatcher    Dispatcher
	dedup         dedup.Guard
	publisher     events.Publisher
	logger        *slog.Logger
}

// NewEngine wires an engine. Dedup and Publisher are optional.
func NewEngine(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	detector := deps.Detector
	if detector == nil {
		detector = handoff.NewDetector(nil)
	}
	return &Engine{
		conversations: deps.Conversations,
		extractor:     deps.Extractor,
		generator:     deps.Generator,
		flags:         deps.Flags,
		detector:      detector,
		handoff:       deps.Handoff,
		dispatcher:    deps.Dispatcher,
		dedup:         deps.Dedup,
		publisher:     publisher,
		logger:        logger.With("component", "engine"),
	}
}

// Handle runs one message through the pipeline and reports its status. It never
// panics on collaborator failures; every outcome maps to a Status.
func (e *Engine) Handle(ctx context.Context, msg conversation.InboundMessage) conversation.Status {
	status := e.handle(ctx, msg)
	metrics.InboundMessages.WithLabelValues(string(msg.Channel), string(status)).Inc()
	return status
}

// HandleBatch processes messages in order. The batch is an error if any message
// failed, otherwise it carries the status of the last message.
func (e *Engine) HandleBatch(ctx context.Context, msgs []conversation.InboundMessage) conversation.Status {
	status := conversation.StatusSuccess
	failed := false
	for _, msg := range msgs {
		status = e.Handle(ctx, msg)
		if status == conversation.StatusError {
			failed = true
		}
	}
	if failed {
		return conversation.StatusError
	}
	return status
}

func (e *Engine) handle(ctx context.Context, msg conversation.InboundMessage) conversation.Status {
	key := msg.Key()
	log := e.logger.With("key", key.String(), "message", msg.ID)

	if msg.ContactID == "" {
		return conversation.StatusNoContact
	}
	if e.duplicate(ctx, msg) {
		log.Info("duplicate delivery dropped")
		return conversation.StatusSuccess
	}
	if !e.flags.ChannelEnabled(ctx, msg.Channel) {
		log.Info("channel disabled, message ignored")
		return conversation.StatusChannelDisabled
	}
	if e.handoff.Operator().Is(key) && msg.Kind == conversation.KindText {
		if cmd, ok := handoff.ParseCommand(msg.Text); ok {
			return e.operatorCommand(ctx, key, cmd)
		}
	}
	if !e.flags.BotEnabled(ctx) {
		log.Info("bot disabled, message ignored")
		return conversation.StatusBotDisabled
	}

	// The ticket is taken on arrival so a slow extraction cannot be overtaken
	// by a later message of the same key.
	unlock, err := e.conversations.Lock(ctx, key)
	if err != nil {
		log.Error("wait for conversation lock", "error", err)
		return conversation.StatusError
	}
	defer unlock()

	res, err := e.extractor.Extract(ctx, msg)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedContent) {
			log.Info("unsupported content ignored", "kind", msg.Kind, "reason", err)
			return conversation.StatusSuccess
		}
		log.Error("extraction failed", "kind", msg.Kind, "error", err)
		return conversation.StatusError
	}
	if res.Empty() {
		log.Info("nothing to answer", "kind", msg.Kind)
		return conversation.StatusSuccess
	}

	return e.respond(ctx, log, key, res)
}

// respond runs the state-dependent part of the pipeline. The caller holds the
// key lock.
func (e *Engine) respond(ctx context.Context, log *slog.Logger, key conversation.Key, res extract.Result) conversation.Status {
	userTurn := conversation.Turn{
		ContactID: key.ContactID,
		Channel:   key.Channel,
		Role:      conversation.RoleUser,
		Text:      res.TranscriptText(),
		Kind:      res.Kind,
	}

	if e.conversations.CurrentMode(ctx, key) == conversation.ModeHuman {
		userTurn.Mode = conversation.ModeHuman
		if _, err := e.conversations.AppendTurn(ctx, userTurn); err != nil {
			log.Error("record turn in human mode", "error", err)
		}
		log.Info("operator handling conversation, no reply")
		return conversation.StatusHumanMode
	}

	history, err := e.conversations.RecentTurns(ctx, key, convsvc.HistoryWindow)
	if err != nil {
		log.Warn("load history failed, answering without context", "error", err)
		history = nil
	}

	userTurn.Mode = conversation.ModeAI
	if _, err := e.conversations.AppendTurn(ctx, userTurn); err != nil {
		log.Error("record user turn", "error", err)
	}

	if detectsHandoff(res.Kind) {
		if keyword, ok := e.detector.Match(res.Text); ok {
			log.Info("handoff requested", "keyword", keyword)
			if _, err := e.handoff.Transfer(ctx, key, TransferReason); err != nil {
				log.Error("transfer to operator failed", "error", err)
				return conversation.StatusError
			}
			return conversation.StatusTransferredToHuman
		}
	}

	reply := res.Text
	if !res.Fallback {
		reply = e.generator.Generate(ctx, key, res.Query(), history)
	}

	_, err = e.conversations.AppendTurn(ctx, conversation.Turn{
		ContactID: key.ContactID,
		Channel:   key.Channel,
		Role:      conversation.RoleAssistant,
		Text:      reply,
		Kind:      conversation.KindText,
		Mode:      conversation.ModeAI,
	})
	if err != nil {
		log.Error("record assistant turn", "error", err)
	}

	delivered := e.dispatcher.Send(ctx, key.Channel, key.ContactID, reply)
	if !delivered {
		log.Warn("reply not delivered")
	}

	e.publish(ctx, log, events.TypeMessageReplied, events.MessageReplied{
		ContactID: key.ContactID,
		Channel:   key.Channel,
		Kind:      res.Kind,
		Delivered: delivered,
		Fallback:  res.Fallback,
	}, key)
	return conversation.StatusSuccess
}

func (e *Engine) operatorCommand(ctx context.Context, key conversation.Key, cmd handoff.Command) conversation.Status {
	log := e.logger.With("operator", key.ContactID)

	if err := e.flags.SetBotEnabled(ctx, true); err != nil {
		log.Error("enable bot from operator command", "error", err)
		return conversation.StatusError
	}
	enabled := true
	e.publish(ctx, log, events.TypeFlagsUpdated, events.FlagsUpdated{BotEnabled: &enabled}, key)

	if cmd.ContactID != "" {
		for _, ch := range conversation.Channels() {
			target := conversation.Key{ContactID: cmd.ContactID, Channel: ch}
			if _, err := e.handoff.Release(ctx, target); err != nil {
				log.Error("release conversation", "target", target.String(), "error", err)
			}
		}
	}

	if !e.dispatcher.Send(ctx, key.Channel, key.ContactID, handoff.Confirmation) {
		log.Warn("operator confirmation not delivered")
	}
	log.Info("bot re-enabled by operator", "released", cmd.ContactID)
	return conversation.StatusSuccess
}

func (e *Engine) duplicate(ctx context.Context, msg conversation.InboundMessage) bool {
	if e.dedup == nil {
		return false
	}
	first, err := e.dedup.FirstSeen(ctx, msg.Channel, msg.ID)
	if err != nil {
		e.logger.Warn("dedup check failed, processing anyway", "message", msg.ID, "error", err)
		return false
	}
	if !first {
		metrics.DuplicateDeliveries.WithLabelValues(string(msg.Channel)).Inc()
	}
	return !first
}

func (e *Engine) publish(ctx context.Context, log *slog.Logger, eventType string, data any, key conversation.Key) {
	if err := e.publisher.Publish(ctx, eventType, events.New(eventType, data).WithCorrelation(key.String())); err != nil {
		log.Warn("publish event failed", "type", eventType, "error", err)
	}
}

// detectsHandoff limits keyword matching to what the customer typed or said.
func detectsHandoff(kind conversation.ContentKind) bool {
	return kind == conversation.KindText || kind == conversation.KindAudio
}
