package channel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// WebChat reads frames from one browser socket; the contact is the client id
// taken from the socket URL.
type WebChat struct {
	ClientID string
}

func (WebChat) Channel() conversation.Channel { return conversation.ChannelWeb }

type webFrame struct {
	Message string `json:"message"`
}

func (w WebChat) Normalize(raw []byte) ([]conversation.InboundMessage, error) {
	clientID := strings.TrimSpace(w.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrMalformedPayload)
	}

	var f webFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(f.Message) == "" {
		return nil, nil
	}

	return []conversation.InboundMessage{{
		ID:         uuid.NewString(),
		ContactID:  clientID,
		Channel:    conversation.ChannelWeb,
		Kind:       conversation.KindText,
		Text:       f.Message,
		ReceivedAt: time.Now().UTC(),
	}}, nil
}
