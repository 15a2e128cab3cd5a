package conversation

import "time"

// Channel identifies the messaging surface a contact writes from.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelWeb       Channel = "web"
)

// Channels lists every supported channel in display order.
func Channels() []Channel {
	return []Channel{ChannelWhatsApp, ChannelInstagram, ChannelWeb}
}

// Valid reports whether c is one of the supported channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelInstagram, ChannelWeb:
		return true
	default:
		return false
	}
}

// Role marks who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode is the handoff mode of a conversation.
type Mode string

const (
	ModeAI    Mode = "ai"
	ModeHuman Mode = "human"
)

// Key addresses one conversation.
type Key struct {
	ContactID string  `json:"contactId"`
	Channel   Channel `json:"channel"`
}

func (k Key) String() string {
	return string(k.Channel) + ":" + k.ContactID
}

// Turn persists individual exchanges, the unit of transcript history.
type Turn struct {
	ID        string      `json:"id"`
	ContactID string      `json:"contactId"`
	Channel   Channel     `json:"channel"`
	Role      Role        `json:"role"`
	Text      string      `json:"text"`
	Kind      ContentKind `json:"kind"`
	Mode      Mode        `json:"mode"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Key returns the conversation the turn belongs to.
func (t Turn) Key() Key {
	return Key{ContactID: t.ContactID, Channel: t.Channel}
}

// State is the explicit handoff record of a conversation. Version grows by one on
// every mode change and guards compare-and-set updates.
type State struct {
	Key       Key       `json:"key"`
	Mode      Mode      `json:"mode"`
	Version   int64     `json:"version"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultState is the state of a conversation that was never transferred.
func DefaultState(key Key) State {
	return State{Key: key, Mode: ModeAI}
}
