package channel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// Instagram reads Meta messaging webhooks. Events without a sender or a message
// body (reads, reactions) and echoes of our own sends are skipped.
type Instagram struct{}

func (Instagram) Channel() conversation.Channel { return conversation.ChannelInstagram }

type metaPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string          `json:"id"`
		Messaging []metaMessaging `json:"messaging"`
	} `json:"entry"`
}

type metaMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Timestamp int64 `json:"timestamp"`
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
}

func (Instagram) Normalize(raw []byte) ([]conversation.InboundMessage, error) {
	var p metaPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var out []conversation.InboundMessage
	for _, entry := range p.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil || ev.Message.IsEcho || ev.Sender.ID == "" {
				continue
			}

			msg := conversation.InboundMessage{
				ID:         ev.Message.MID,
				ContactID:  ev.Sender.ID,
				Channel:    conversation.ChannelInstagram,
				Kind:       conversation.KindText,
				Text:       ev.Message.Text,
				ReceivedAt: millis(ev.Timestamp),
			}
			if len(ev.Message.Attachments) > 0 {
				att := ev.Message.Attachments[0]
				msg.MediaURL = att.Payload.URL
				msg.Kind = metaKind(att.Type)
				if msg.Kind == conversation.KindDocument {
					msg.FileName = fileNameFromURL(att.Payload.URL)
				}
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

func metaKind(t string) conversation.ContentKind {
	switch t {
	case "image":
		return conversation.KindImage
	case "audio":
		return conversation.KindAudio
	case "file":
		return conversation.KindDocument
	default:
		return conversation.KindUnsupported
	}
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
