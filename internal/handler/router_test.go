package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	convsvc "github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/dispatch"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/service/settings"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
)

func newTestRouter(adminToken string) http.Handler {
	store := storage.NewMemoryStore()
	return NewRouter(Deps{
		Hub:         dispatch.NewHub(nil),
		Settings:    settings.NewService(store, time.Second, nil),
		Stats:       convsvc.NewService(store, nil),
		Personas:    store,
		VerifyToken: "mia-verify-token",
		AdminToken:  adminToken,
	})
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Channels[conversation.ChannelWhatsApp])
	assert.False(t, resp.Channels[conversation.ChannelWeb])
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}

func TestMetricsExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControlAPIRequiresToken(t *testing.T) {
	disabled := httptest.NewRecorder()
	newTestRouter("").ServeHTTP(disabled, httptest.NewRequest(http.MethodGet, "/api/control/status", nil))
	assert.Equal(t, http.StatusNotFound, disabled.Code)

	r := newTestRouter("s3cret")

	anonymous := httptest.NewRecorder()
	r.ServeHTTP(anonymous, httptest.NewRequest(http.MethodGet, "/api/control/status", nil))
	assert.Equal(t, http.StatusUnauthorized, anonymous.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/control/persona", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	authorised := httptest.NewRecorder()
	r.ServeHTTP(authorised, req)
	assert.Equal(t, http.StatusOK, authorised.Code)
	assert.Contains(t, authorised.Body.String(), `"name":"Mia"`)
}
