// Package control 提供需要令牌的运营控制接口
package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/events"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
	"github.com/Beatrizpaiva2025/Mia-Welcome/pkg/utils"
)

const maxBodyBytes = 4 << 10

// Settings 读写机器人与渠道开关
type Settings interface {
	Flags(ctx context.Context) storage.Flags
	SetBotEnabled(ctx context.Context, enabled bool) error
	SetChannelEnabled(ctx context.Context, ch conversation.Channel, enabled bool) error
}

// StatsSource 统计消息量
type StatsSource interface {
	StatsSince(ctx context.Context, since time.Time) (storage.Stats, error)
}

// Handler 控制面板 API
type Handler struct {
	settings  Settings
	stats     StatsSource
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New 创建控制处理器，publisher 为 nil 时丢弃事件
func New(settings Settings, stats StatsSource, publisher events.Publisher, logger *slog.Logger) *Handler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		settings:  settings,
		stats:     stats,
		publisher: publisher,
		logger:    logger.With("component", "control"),
		now:       time.Now,
	}
}

// RegisterRoutes 注册控制路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Post("/bot", h.handleSetBot)
	r.Post("/channels/{channel}", h.handleSetChannel)
	r.Get("/stats", h.handleStats)
}

type statusResponse struct {
	BotEnabled bool                          `json:"bot_enabled"`
	Channels   map[conversation.Channel]bool `json:"channels"`
	Timestamp  string                        `json:"timestamp"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type statsResponse struct {
	Since         string `json:"since"`
	Messages      int    `json:"messages"`
	Conversations int    `json:"conversations"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.status(r.Context()))
}

func (h *Handler) handleSetBot(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := utils.DecodeJSON(r, maxBodyBytes, &req); err != nil || req.Enabled == nil {
		utils.RespondError(w, http.StatusBadRequest, `body must be {"enabled": bool}`)
		return
	}

	if err := h.settings.SetBotEnabled(r.Context(), *req.Enabled); err != nil {
		h.logger.Error("set bot enabled failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "could not update bot status")
		return
	}
	h.logger.Info("bot toggled", "enabled", *req.Enabled)
	h.publish(r.Context(), events.FlagsUpdated{BotEnabled: req.Enabled})

	utils.RespondJSON(w, http.StatusOK, h.status(r.Context()))
}

func (h *Handler) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	ch := conversation.Channel(chi.URLParam(r, "channel"))
	if !ch.Valid() {
		utils.RespondError(w, http.StatusNotFound, "unknown channel")
		return
	}

	var req toggleRequest
	if err := utils.DecodeJSON(r, maxBodyBytes, &req); err != nil || req.Enabled == nil {
		utils.RespondError(w, http.StatusBadRequest, `body must be {"enabled": bool}`)
		return
	}

	if err := h.settings.SetChannelEnabled(r.Context(), ch, *req.Enabled); err != nil {
		h.logger.Error("set channel enabled failed", "channel", ch, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "could not update channel status")
		return
	}
	h.logger.Info("channel toggled", "channel", ch, "enabled", *req.Enabled)
	h.publish(r.Context(), events.FlagsUpdated{Channel: &ch, Enabled: req.Enabled})

	utils.RespondJSON(w, http.StatusOK, h.status(r.Context()))
}

// handleStats 统计本地零点以来的数据
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats, err := h.stats.StatsSince(r.Context(), midnight)
	if err != nil {
		h.logger.Error("count stats failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, statsResponse{
		Since:         midnight.Format(time.RFC3339),
		Messages:      stats.Messages,
		Conversations: stats.Conversations,
	})
}

func (h *Handler) status(ctx context.Context) statusResponse {
	flags := h.settings.Flags(ctx)
	channels := make(map[conversation.Channel]bool, len(conversation.Channels()))
	for _, ch := range conversation.Channels() {
		channels[ch] = flags.ChannelEnabled(ch)
	}
	return statusResponse{
		BotEnabled: flags.BotEnabled,
		Channels:   channels,
		Timestamp:  h.now().UTC().Format(time.RFC3339),
	}
}

func (h *Handler) publish(ctx context.Context, data events.FlagsUpdated) {
	env := events.New(events.TypeFlagsUpdated, data)
	if err := h.publisher.Publish(ctx, events.TypeFlagsUpdated, env); err != nil {
		h.logger.Warn("publish flags event failed", "error", err)
	}
}
