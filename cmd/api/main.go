package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handler"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/ai"
	convsvc "github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dedup"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dispatch"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/events"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/extract"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/handoff"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/orchestrator"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/settings"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/speech"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
)

// describer is what the pipeline needs from the AI service.
type describer interface {
	extract.ImageDescriber
	orchestrator.Generator
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded, using process environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	guard, closeGuard := openDedup(cfg.Redis, logger)
	defer closeGuard()

	publisher := openPublisher(cfg.AMQP, logger)
	defer publisher.Close()

	// AI service; without Ark credentials every reply is the apology text
	var model describer = ai.Unavailable{}
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, store, logger)
		if err != nil {
			logger.Warn("failed to initialize AI service, replies will be apologies", "error", err)
		} else {
			model = aiService
			logger.Info("AI service initialized", "model", cfg.AI.Model, "vision_model", cfg.AI.VisionModel)
		}
	} else {
		logger.Warn("Ark credentials not configured, AI generation disabled")
	}

	speechService := speech.NewService(cfg.Speech.ServiceConfig(), logger)
	if !speechService.Enabled() {
		logger.Warn("speech credentials not configured, voice notes will be ignored")
	}

	fetcher := extract.NewHTTPFetcher(&http.Client{}, cfg.Media.FetchTimeout, cfg.Media.MaxBytes)
	registry := extract.NewRegistry(logger)
	registry.Register(conversation.KindImage, extract.ImageExtractor{Vision: model, Logger: logger})
	registry.Register(conversation.KindAudio, extract.AudioExtractor{Fetcher: fetcher, Transcriber: speechService, Logger: logger})
	registry.Register(conversation.KindDocument, extract.DocumentExtractor{Fetcher: fetcher, Parser: extract.FitzParser{}, Vision: model, Logger: logger})

	hub := dispatch.NewHub(logger)
	dispatcher := dispatch.NewDispatcher(cfg.Channels.SendTimeout, logger)
	dispatcher.Register(conversation.ChannelWhatsApp, dispatch.NewZAPISender(cfg.Channels.ZAPI, nil))
	dispatcher.Register(conversation.ChannelInstagram, dispatch.NewInstagramSender(cfg.Channels.Instagram, nil))
	dispatcher.Register(conversation.ChannelWeb, hub)

	conversations := convsvc.NewService(store, logger)
	flags := settings.NewService(store, cfg.Flags.CacheTTL, logger)
	if cfg.Channels.WebChatEnabled {
		if err := flags.SetChannelEnabled(ctx, conversation.ChannelWeb, true); err != nil {
			logger.Warn("failed to enable web chat", "error", err)
		}
	}

	operator := handoff.Operator{
		ContactID: cfg.Handoff.OperatorPhone,
		Channel:   conversation.Channel(cfg.Handoff.OperatorChannel),
	}
	controller := handoff.NewController(conversations, dispatcher, publisher, operator, cfg.Handoff.SummaryTurns, logger)

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Conversations: conversations,
		Extractor:     registry,
		Generator:     model,
		Flags:         flags,
		Detector:      handoff.NewDetector(cfg.Handoff.Keywords),
		Handoff:       controller,
		Dispatcher:    dispatcher,
		Dedup:         guard,
		Publisher:     publisher,
		Logger:        logger,
	})

	router := handler.NewRouter(handler.Deps{
		Engine:          engine,
		Hub:             hub,
		Settings:        flags,
		Stats:           conversations,
		Personas:        store,
		Publisher:       publisher,
		VerifyToken:     cfg.Channels.Instagram.VerifyToken,
		AdminToken:      cfg.Admin.Token,
		PipelineTimeout: cfg.Server.PipelineTimeout,
		Logger:          logger,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, conversations are kept in memory only")
		return storage.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	store, err := storage.OpenPostgres(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return store, nil
}

func openDedup(cfg config.RedisConfig, logger *slog.Logger) (dedup.Guard, func()) {
	if cfg.Addr != "" {
		guard, err := dedup.NewRedisGuard(dedup.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      cfg.DedupTTL,
		})
		if err == nil {
			logger.Info("duplicate guard backed by redis", "addr", cfg.Addr)
			return guard, func() { _ = guard.Close() }
		}
		logger.Warn("redis unavailable, using in-memory duplicate guard", "error", err)
	}
	return dedup.NewMemoryGuard(cfg.DedupTTL), func() {}
}

func openPublisher(cfg config.AMQPConfig, logger *slog.Logger) events.Publisher {
	if cfg.URL == "" {
		return events.Nop{}
	}
	publisher, err := events.NewAMQP(cfg.URL, cfg.Exchange, logger)
	if err != nil {
		logger.Warn("amqp unavailable, domain events disabled", "error", err)
		return events.Nop{}
	}
	logger.Info("publishing domain events", "exchange", cfg.Exchange)
	return publisher
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Mia Welcome listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
