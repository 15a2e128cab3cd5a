package persona

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
	"github.com/Beatrizpaiva2025/Mia-Welcome/pkg/utils"
)

// Handler persona 配置的只读 HTTP 处理器
type Handler struct {
	personas persona.Store
	logger   *slog.Logger
}

// New 创建 persona 处理器
func New(personas persona.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		personas: personas,
		logger:   logger.With("component", "persona"),
	}
}

// RegisterRoutes 注册 persona 相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/persona", h.handleGetPersona)
}

// handleGetPersona 返回当前生效的 persona
func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	profile, err := h.personas.Load(r.Context())
	if err != nil {
		h.logger.Error("load persona failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "persona unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, profile)
}
