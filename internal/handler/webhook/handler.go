// Package webhook 处理各消息渠道的 webhook 回调
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/pkg/utils"
)

const (
	maxBodyBytes           = 1 << 20
	defaultPipelineTimeout = 180 * time.Second
)

// Processor 将归一化后的消息交给处理引擎
type Processor interface {
	HandleBatch(ctx context.Context, msgs []conversation.InboundMessage) conversation.Status
}

// Handler webhook 入口
type Handler struct {
	processor   Processor
	whatsapp    channel.Adapter
	instagram   channel.Adapter
	verifyToken string
	timeout     time.Duration
	logger      *slog.Logger
}

// New 创建 webhook 处理器
func New(processor Processor, verifyToken string, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = defaultPipelineTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		processor:   processor,
		whatsapp:    channel.ZAPI{},
		instagram:   channel.Instagram{},
		verifyToken: verifyToken,
		timeout:     timeout,
		logger:      logger.With("component", "webhook"),
	}
}

// RegisterRoutes 注册 webhook 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/whatsapp", h.receive(h.whatsapp))
	r.Post("/webhook/instagram", h.receive(h.instagram))
	r.Get("/webhook/instagram", h.verify)
}

func (h *Handler) receive(adapter channel.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch := adapter.Channel()

		body, err := utils.ReadBody(r, maxBodyBytes)
		if err != nil {
			h.logger.Warn("read webhook body failed", "channel", ch, "error", err)
			utils.RespondStatus(w, http.StatusOK, string(conversation.StatusError))
			return
		}

		msgs, err := adapter.Normalize(body)
		if err != nil {
			if errors.Is(err, channel.ErrMalformedPayload) {
				h.logger.Info("malformed webhook dropped", "channel", ch, "error", err)
				utils.RespondStatus(w, http.StatusOK, string(conversation.StatusNoContact))
				return
			}
			h.logger.Error("normalize webhook failed", "channel", ch, "error", err)
			utils.RespondStatus(w, http.StatusOK, string(conversation.StatusError))
			return
		}

		// 渠道方不会等待处理结果，仅由流水线超时约束
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
		defer cancel()

		status := h.processor.HandleBatch(ctx, msgs)
		h.logger.Debug("webhook processed", "channel", ch, "messages", len(msgs), "status", status)
		utils.RespondStatus(w, http.StatusOK, string(status))
	}
}

// verify 完成 Meta 的订阅校验，原样返回数字 challenge
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken || !numeric(challenge) {
		h.logger.Warn("webhook verification rejected", "mode", mode)
		utils.RespondStatus(w, http.StatusForbidden, string(conversation.StatusError))
		return
	}

	h.logger.Info("instagram webhook verified")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
