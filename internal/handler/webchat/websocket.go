// Package webchat 提供网页聊天的 WebSocket 接入
package webchat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dispatch"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 << 10
	queueSize    = 16
)

// Processor 处理单条消息，回复经由 hub 推送给浏览器而不是通过返回值
type Processor interface {
	Handle(ctx context.Context, msg conversation.InboundMessage) conversation.Status
}

// WebSocketHandler WebSocket 网页聊天处理器
type WebSocketHandler struct {
	processor    Processor
	hub          *dispatch.Hub
	timeout      time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(processor Processor, hub *dispatch.Hub, timeout time.Duration, logger *slog.Logger) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		processor:    processor,
		hub:          hub,
		timeout:      timeout,
		pongWait:     pongWait,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With("component", "webchat"),
	}
}

// RegisterWebSocketRoutes 注册 WebSocket 路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/chat/{clientID}", h.handleWebSocket)
}

type errorFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// handleWebSocket 处理 WebSocket 连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		http.Error(w, "clientID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "client", clientID, "error", err)
		return
	}
	defer conn.Close()

	client := h.hub.Register(clientID, conn)
	defer h.hub.Unregister(client)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go h.pingLoop(ctx, client)

	// 消息在独立协程中按序处理，读循环持续接收 pong
	queue := make(chan conversation.InboundMessage, queueSize)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for msg := range queue {
			h.process(ctx, msg)
		}
	}()
	defer func() {
		close(queue)
		<-drained
	}()

	adapter := channel.WebChat{ClientID: clientID}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", "client", clientID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))

		msgs, err := adapter.Normalize(data)
		if err != nil {
			if errors.Is(err, channel.ErrMalformedPayload) {
				h.sendError(ctx, client, "invalid message")
				continue
			}
			h.logger.Error("normalize frame failed", "client", clientID, "error", err)
			continue
		}

		for _, msg := range msgs {
			queue <- msg
		}
	}
}

func (h *WebSocketHandler) process(ctx context.Context, msg conversation.InboundMessage) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := h.processor.Handle(ctx, msg)
	h.logger.Debug("frame processed", "client", msg.ContactID, "status", status)
}

func (h *WebSocketHandler) sendError(ctx context.Context, client *dispatch.Client, message string) {
	frame := errorFrame{Type: "error", Content: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := client.WriteJSON(ctx, frame); err != nil {
		h.logger.Warn("write error frame failed", "error", err)
	}
}

// pingLoop 定期发送 ping 消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, client *dispatch.Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.WritePing(); err != nil {
				return
			}
		}
	}
}
