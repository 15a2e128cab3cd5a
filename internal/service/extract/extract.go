// Package extract turns inbound content of any kind into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/metrics"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// ErrUnsupportedContent marks content the engine logs but does not answer.
var ErrUnsupportedContent = errors.New("unsupported content")

// ImageApology replaces a reply when an image cannot be described.
const ImageApology = "Desculpe, não consegui processar esta imagem no momento."

const transcriptPreview = 200

// Result is the text form of one inbound message.
type Result struct {
	Kind conversation.ContentKind
	Text string
	// Fallback means Text is a ready-made reply and generation must be skipped.
	Fallback bool
}

// Empty reports whether there is nothing to answer.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// TranscriptText is the form stored in the transcript.
func (r Result) TranscriptText() string {
	switch r.Kind {
	case conversation.KindImage:
		if r.Fallback {
			return "[Imagem recebida]"
		}
		return "[Imagem]: " + r.Text
	case conversation.KindAudio:
		return "[Áudio]: " + r.Text
	case conversation.KindDocument:
		return "[PDF]: " + truncate(r.Text, transcriptPreview) + "..."
	default:
		return r.Text
	}
}

// Query is the form handed to generation as the new user turn.
func (r Result) Query() string {
	switch r.Kind {
	case conversation.KindImage:
		return "Cliente enviou uma imagem. Descrição: " + r.Text
	case conversation.KindDocument:
		return "Cliente enviou PDF com conteúdo: " + r.Text
	default:
		return r.Text
	}
}

// Extractor handles one content kind.
type Extractor interface {
	Extract(ctx context.Context, msg conversation.InboundMessage) (Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, msg conversation.InboundMessage) (Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, msg conversation.InboundMessage) (Result, error) {
	return f(ctx, msg)
}

// Registry routes messages to the extractor registered for their kind.
type Registry struct {
	arms   map[conversation.ContentKind]Extractor
	logger *slog.Logger
}

// NewRegistry creates a registry with the text arm installed.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		arms:   make(map[conversation.ContentKind]Extractor),
		logger: logger.With("component", "extract"),
	}
	r.Register(conversation.KindText, ExtractorFunc(extractText))
	return r
}

// Register installs ex for kind, replacing any previous arm.
func (r *Registry) Register(kind conversation.ContentKind, ex Extractor) {
	r.arms[kind] = ex
}

// Extract runs the arm for msg.Kind. Unknown kinds yield ErrUnsupportedContent.
func (r *Registry) Extract(ctx context.Context, msg conversation.InboundMessage) (Result, error) {
	arm, ok := r.arms[msg.Kind]
	if !ok {
		return Result{Kind: msg.Kind}, fmt.Errorf("%w: kind %q", ErrUnsupportedContent, msg.Kind)
	}

	res, err := arm.Extract(ctx, msg)
	res.Kind = msg.Kind
	if err != nil {
		return res, err
	}
	if res.Fallback || (res.Empty() && msg.Kind != conversation.KindText) {
		metrics.ExtractionFailures.WithLabelValues(string(msg.Kind)).Inc()
	}
	return res, nil
}

func extractText(_ context.Context, msg conversation.InboundMessage) (Result, error) {
	return Result{Kind: conversation.KindText, Text: msg.Text}, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
