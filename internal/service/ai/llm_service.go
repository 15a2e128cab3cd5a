package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/metrics"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
)

// GenerationApology is sent when the completion call fails.
const GenerationApology = "Desculpe, estou com dificuldades técnicas no momento. Tente novamente em instantes."

const (
	defaultTimeout     = 60 * time.Second
	visionMaxTokens    = 1000
	defaultImagePrompt = "Analise esta imagem e forneça informações sobre tradução se for um documento."
)

// Service encapsulates AI-powered reply generation and image description.
type Service struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	vision   model.ChatModel
	personas persona.Store
	timeout  time.Duration
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewService creates the service from configuration.
func NewService(ctx context.Context, cfg config.AIConfig, personas persona.Store, logger *slog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	visionModel, err := cfg.NewVisionModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision model: %w", err)
	}
	return NewServiceWithModels(ctx, chatModel, visionModel, personas, cfg.Timeout, logger)
}

// NewServiceWithModels wires already constructed models.
func NewServiceWithModels(ctx context.Context, chatModel, visionModel model.ChatModel, personas persona.Store, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		chain:    runnable,
		vision:   visionModel,
		personas: personas,
		timeout:  timeout,
		logger:   logger.With("component", "ai"),
		sleep:    sleepContext,
	}, nil
}

// Generate produces the reply to text given the prior turns of the key. It
// waits for the profile's pacing delay first and never fails: any error yields
// GenerationApology.
func (s *Service) Generate(ctx context.Context, key conversation.Key, text string, history []conversation.Turn) string {
	profile := s.loadPersona(ctx)

	if delay := profile.ResponseDelay(); delay > 0 {
		if err := s.sleep(ctx, delay); err != nil {
			s.logger.Warn("pacing delay interrupted", "key", key.String(), "error", err)
			return GenerationApology
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	response, err := s.chain.Invoke(ctx, buildChainInput(profile, history, text))
	metrics.GenerationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.logger.Error("generation failed", "key", key.String(), "error", err)
		return GenerationApology
	}

	reply := strings.TrimSpace(response.Content)
	if reply == "" {
		s.logger.Warn("empty completion", "key", key.String())
		return GenerationApology
	}

	s.logger.Info("generated response", "key", key.String(), "history", min(len(history), HistoryLimit), "length", len(reply))
	return reply
}

// DescribeImage asks the vision model about imageURL, which may be an http(s)
// URL or a data URL. An empty instruction uses the default document prompt.
func (s *Service) DescribeImage(ctx context.Context, imageURL, instruction string) (string, error) {
	if s.vision == nil {
		return "", errors.New("vision model not configured")
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = defaultImagePrompt
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	messages := []*schema.Message{
		schema.SystemMessage(BuildSystemPrompt(s.loadPersona(ctx))),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: instruction},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: imageURL}},
			},
		},
	}

	response, err := s.vision.Generate(ctx, messages, model.WithMaxTokens(visionMaxTokens))
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}

	description := strings.TrimSpace(response.Content)
	if description == "" {
		return "", errors.New("vision completion returned no text")
	}
	return description, nil
}

// Persona returns the current profile, falling back to the seed profile.
func (s *Service) Persona(ctx context.Context) persona.Persona {
	return s.loadPersona(ctx)
}

func (s *Service) loadPersona(ctx context.Context) persona.Persona {
	profile, err := s.personas.Load(ctx)
	if err != nil {
		s.logger.Warn("load persona failed, using seed profile", "error", err)
		return persona.Seed()
	}
	return profile
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
