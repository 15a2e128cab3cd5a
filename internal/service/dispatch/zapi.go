package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

// ZAPISender sends WhatsApp text through a Z-API instance.
type ZAPISender struct {
	cfg    config.ZAPIConfig
	client *http.Client
}

// NewZAPISender creates the sender. A nil client uses http.DefaultClient.
func NewZAPISender(cfg config.ZAPIConfig, client *http.Client) *ZAPISender {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ZAPISender{cfg: cfg, client: client}
}

type zapiTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (s *ZAPISender) Send(ctx context.Context, contactID, text string) error {
	if !s.cfg.Enabled() {
		return fmt.Errorf("zapi: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(zapiTextRequest{Phone: contactID, Message: text})
	if err != nil {
		return fmt.Errorf("marshal zapi request: %w", err)
	}

	url := fmt.Sprintf("%s/instances/%s/token/%s/send-text", s.cfg.BaseURL, s.cfg.InstanceID, s.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build zapi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.ClientToken != "" {
		req.Header.Set("Client-Token", s.cfg.ClientToken)
	}

	return doSend(s.client, req, "zapi")
}

func doSend(client *http.Client, req *http.Request, provider string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
