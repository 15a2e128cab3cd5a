// Package channel normalises provider payloads into inbound messages.
package channel

import (
	"errors"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

// ErrMalformedPayload is returned for bodies that are not JSON or lack a contact id.
var ErrMalformedPayload = errors.New("malformed payload")

// Adapter turns one raw delivery into zero or more messages. Adapters do no I/O.
type Adapter interface {
	Channel() conversation.Channel
	Normalize(raw []byte) ([]conversation.InboundMessage, error)
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
