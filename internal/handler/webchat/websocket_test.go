package webchat

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dispatch"
)

// echoProcessor answers through the hub the way the engine's dispatcher does.
type echoProcessor struct {
	hub  *dispatch.Hub
	mu   sync.Mutex
	seen []conversation.InboundMessage
}

func (p *echoProcessor) Handle(ctx context.Context, msg conversation.InboundMessage) conversation.Status {
	p.mu.Lock()
	p.seen = append(p.seen, msg)
	p.mu.Unlock()
	if err := p.hub.Send(ctx, msg.ContactID, "eco: "+msg.Text); err != nil {
		return conversation.StatusError
	}
	return conversation.StatusSuccess
}

func dial(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat/"+clientID, nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func TestWebChatRoundTrip(t *testing.T) {
	hub := dispatch.NewHub(nil)
	processor := &echoProcessor{hub: hub}
	r := chi.NewRouter()
	NewWebSocketHandler(processor, hub, time.Second, nil).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dial(t, srv, "visitor-7")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "Olá"}))

	var frame dispatch.OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "eco: Olá", frame.Content)

	processor.mu.Lock()
	defer processor.mu.Unlock()
	require.Len(t, processor.seen, 1)
	assert.Equal(t, "visitor-7", processor.seen[0].ContactID)
	assert.Equal(t, conversation.ChannelWeb, processor.seen[0].Channel)
}

func TestWebChatRejectsBadFrame(t *testing.T) {
	hub := dispatch.NewHub(nil)
	processor := &echoProcessor{hub: hub}
	r := chi.NewRouter()
	NewWebSocketHandler(processor, hub, time.Second, nil).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dial(t, srv, "visitor-8")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var frame errorFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "   "}))
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "oi"}))

	var reply dispatch.OutboundFrame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "eco: oi", reply.Content)
}

// slowProcessor answers after a delay longer than the read deadline.
type slowProcessor struct {
	echoProcessor
	delay time.Duration
}

func (p *slowProcessor) Handle(ctx context.Context, msg conversation.InboundMessage) conversation.Status {
	time.Sleep(p.delay)
	return p.echoProcessor.Handle(ctx, msg)
}

func TestWebChatSurvivesSlowReplies(t *testing.T) {
	hub := dispatch.NewHub(nil)
	processor := &slowProcessor{echoProcessor: echoProcessor{hub: hub}, delay: 400 * time.Millisecond}
	handler := NewWebSocketHandler(processor, hub, 5*time.Second, nil)
	handler.pongWait = 150 * time.Millisecond
	handler.pingInterval = 50 * time.Millisecond

	r := chi.NewRouter()
	handler.RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dial(t, srv, "visitor-9")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "primeira"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "segunda"}))

	// ReadJSON answers the server pings with pongs while waiting.
	for _, want := range []string{"eco: primeira", "eco: segunda"} {
		var frame dispatch.OutboundFrame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, want, frame.Content)
	}
}
