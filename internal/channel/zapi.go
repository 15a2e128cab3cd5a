package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// ZAPI reads Z-API "on message received" webhooks.
type ZAPI struct{}

func (ZAPI) Channel() conversation.Channel { return conversation.ChannelWhatsApp }

type zapiPayload struct {
	Phone     string `json:"phone"`
	MessageID string `json:"messageId"`
	FromMe    bool   `json:"fromMe"`
	IsGroup   bool   `json:"isGroup"`
	Type      string `json:"type"`
	Momment   int64  `json:"momment"`
	Text      *struct {
		Message string `json:"message"`
	} `json:"text"`
	Image *struct {
		ImageURL string `json:"imageUrl"`
		Caption  string `json:"caption"`
		MimeType string `json:"mimeType"`
	} `json:"image"`
	Audio *struct {
		AudioURL string `json:"audioUrl"`
		MimeType string `json:"mimeType"`
	} `json:"audio"`
	Document *struct {
		DocumentURL string `json:"documentUrl"`
		FileName    string `json:"fileName"`
		MimeType    string `json:"mimeType"`
		Caption     string `json:"caption"`
	} `json:"document"`
}

func (z ZAPI) Normalize(raw []byte) ([]conversation.InboundMessage, error) {
	var p zapiPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.FromMe || p.IsGroup {
		return nil, nil
	}

	phone := strings.TrimSpace(p.Phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: missing phone", ErrMalformedPayload)
	}

	msg := conversation.InboundMessage{
		ID:         p.MessageID,
		ContactID:  phone,
		Channel:    conversation.ChannelWhatsApp,
		ReceivedAt: millis(p.Momment),
	}
	if p.Text != nil {
		msg.Text = p.Text.Message
	}

	switch {
	case p.Image != nil:
		msg.Kind = conversation.KindImage
		msg.MediaURL = p.Image.ImageURL
		msg.MimeType = p.Image.MimeType
		if p.Image.Caption != "" {
			msg.Text = p.Image.Caption
		}
	case p.Audio != nil:
		msg.Kind = conversation.KindAudio
		msg.MediaURL = p.Audio.AudioURL
		msg.MimeType = p.Audio.MimeType
	case p.Document != nil:
		msg.Kind = conversation.KindDocument
		msg.MediaURL = p.Document.DocumentURL
		msg.FileName = p.Document.FileName
		msg.MimeType = p.Document.MimeType
		if p.Document.Caption != "" {
			msg.Text = p.Document.Caption
		}
	case p.Text != nil:
		msg.Kind = conversation.KindText
	default:
		msg.Kind = zapiKind(p.Type)
	}
	return []conversation.InboundMessage{msg}, nil
}

func zapiKind(t string) conversation.ContentKind {
	switch strings.ToLower(t) {
	case "text":
		return conversation.KindText
	case "image":
		return conversation.KindImage
	case "audio", "ptt":
		return conversation.KindAudio
	case "document":
		return conversation.KindDocument
	default:
		return conversation.KindUnsupported
	}
}
