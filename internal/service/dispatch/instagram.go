package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

// InstagramSender sends direct messages through the Graph API.
type InstagramSender struct {
	cfg    config.InstagramConfig
	client *http.Client
}

// NewInstagramSender creates the sender. A nil client uses http.DefaultClient.
func NewInstagramSender(cfg config.InstagramConfig, client *http.Client) *InstagramSender {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	return &InstagramSender{cfg: cfg, client: client}
}

type graphMessageRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	AccessToken string `json:"access_token"`
}

func (s *InstagramSender) Send(ctx context.Context, contactID, text string) error {
	if !s.cfg.Enabled() {
		return fmt.Errorf("instagram: %w", ErrNotConfigured)
	}

	var payload graphMessageRequest
	payload.Recipient.ID = contactID
	payload.Message.Text = text
	payload.AccessToken = s.cfg.AccessToken

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal graph request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.GraphURL, s.cfg.PageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return doSend(s.client, req, "instagram")
}
