package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handler/control"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handler/persona"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handler/webchat"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handler/webhook"
	middlewarePkg "github.com/Beatrizpaiva2025/Mia-Welcome/internal/middleware"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	personaModel "github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dispatch"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/events"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/orchestrator"
	"github.com/Beatrizpaiva2025/Mia-Welcome/pkg/utils"
)

// Deps are the services the HTTP surface needs.
type Deps struct {
	Engine          *orchestrator.Engine
	Hub             *dispatch.Hub
	Settings        control.Settings
	Stats           control.StatsSource
	Personas        personaModel.Store
	Publisher       events.Publisher
	VerifyToken     string
	AdminToken      string
	PipelineTimeout time.Duration
	Logger          *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middlewarePkg.Recover)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", handleHealth(deps.Settings))
	r.Handle("/metrics", promhttp.Handler())

	webhook.New(deps.Engine, deps.VerifyToken, deps.PipelineTimeout, logger).RegisterRoutes(r)
	webchat.NewWebSocketHandler(deps.Engine, deps.Hub, deps.PipelineTimeout, logger).RegisterWebSocketRoutes(r)

	// The operator API is only reachable when a token is configured.
	if deps.AdminToken != "" {
		r.Route("/api/control", func(api chi.Router) {
			api.Use(middlewarePkg.BearerToken(deps.AdminToken))
			control.New(deps.Settings, deps.Stats, deps.Publisher, logger).RegisterRoutes(api)
			persona.New(deps.Personas, logger).RegisterRoutes(api)
		})
	} else {
		logger.Info("ADMIN_TOKEN not set, control API disabled")
	}

	return r
}

type healthResponse struct {
	Status    string                        `json:"status"`
	Timestamp string                        `json:"timestamp"`
	Channels  map[conversation.Channel]bool `json:"channels"`
}

// handleHealth reports liveness and the enablement of each channel.
func handleHealth(settings control.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flags := settings.Flags(r.Context())
		channels := make(map[conversation.Channel]bool, len(conversation.Channels()))
		for _, ch := range conversation.Channels() {
			channels[ch] = flags.ChannelEnabled(ch)
		}
		utils.RespondJSON(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Channels:  channels,
		})
	}
}
