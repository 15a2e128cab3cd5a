package conversation

import "time"

// ContentKind classifies the body of an inbound message.
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindImage       ContentKind = "image"
	KindAudio       ContentKind = "audio"
	KindDocument    ContentKind = "document"
	KindUnsupported ContentKind = "unsupported"
)

// InboundMessage is one customer message normalised from a channel payload.
// Values are never mutated after the adapter builds them.
type InboundMessage struct {
	ID         string      `json:"id,omitempty"`
	ContactID  string      `json:"contactId"`
	Channel    Channel     `json:"channel"`
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	MediaURL   string      `json:"mediaUrl,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	MimeType   string      `json:"mimeType,omitempty"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// Key returns the conversation the message belongs to.
func (m InboundMessage) Key() Key {
	return Key{ContactID: m.ContactID, Channel: m.Channel}
}
