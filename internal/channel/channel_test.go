package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
)

func TestZAPINormalizeText(t *testing.T) {
	raw := []byte(`{"phone":"5511999990000","messageId":"3EB0A","fromMe":false,"isGroup":false,"type":"ReceivedCallback","momment":1760000000000,"text":{"message":"Olá"}}`)

	msgs, err := ZAPI{}.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "3EB0A", msg.ID)
	assert.Equal(t, "5511999990000", msg.ContactID)
	assert.Equal(t, conversation.ChannelWhatsApp, msg.Channel)
	assert.Equal(t, conversation.KindText, msg.Kind)
	assert.Equal(t, "Olá", msg.Text)
	assert.Equal(t, time.UnixMilli(1760000000000).UTC(), msg.ReceivedAt)
}

func TestZAPINormalizeMedia(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind conversation.ContentKind
		url  string
		text string
	}{
		{"image", `{"phone":"1","image":{"imageUrl":"https://m/i.jpg","caption":"traduzir?","mimeType":"image/jpeg"}}`, conversation.KindImage, "https://m/i.jpg", "traduzir?"},
		{"ptt", `{"phone":"1","type":"ptt","audio":{"audioUrl":"https://m/a.ogg","mimeType":"audio/ogg; codecs=opus"}}`, conversation.KindAudio, "https://m/a.ogg", ""},
		{"document", `{"phone":"1","document":{"documentUrl":"https://m/d.pdf","fileName":"d.pdf","mimeType":"application/pdf"}}`, conversation.KindDocument, "https://m/d.pdf", ""},
		{"sticker", `{"phone":"1","type":"sticker","sticker":{"stickerUrl":"https://m/s.webp"}}`, conversation.KindUnsupported, "", ""},
		{"type fallback", `{"phone":"1","type":"image"}`, conversation.KindImage, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := ZAPI{}.Normalize([]byte(tc.raw))
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, tc.kind, msgs[0].Kind)
			assert.Equal(t, tc.url, msgs[0].MediaURL)
			assert.Equal(t, tc.text, msgs[0].Text)
		})
	}
}

func TestZAPIDropsOwnAndGroupMessages(t *testing.T) {
	for _, raw := range []string{
		`{"phone":"1","fromMe":true,"text":{"message":"eco"}}`,
		`{"phone":"1","isGroup":true,"text":{"message":"grupo"}}`,
	} {
		msgs, err := ZAPI{}.Normalize([]byte(raw))
		require.NoError(t, err)
		assert.Empty(t, msgs)
	}
}

func TestZAPIMalformed(t *testing.T) {
	_, err := ZAPI{}.Normalize([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ZAPI{}.Normalize([]byte(`{"text":{"message":"sem telefone"}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestInstagramNormalizeBatch(t *testing.T) {
	raw := []byte(`{
		"object": "instagram",
		"entry": [{
			"id": "page-1",
			"messaging": [
				{"sender": {"id": "ig-1"}, "timestamp": 1760000000000, "message": {"mid": "m1", "text": "Oi"}},
				{"sender": {"id": "page-1"}, "message": {"mid": "m2", "text": "eco", "is_echo": true}},
				{"sender": {"id": "ig-2"}, "read": {"mid": "m1"}},
				{"sender": {"id": "ig-3"}, "message": {"mid": "m3", "attachments": [{"type": "file", "payload": {"url": "https://cdn.meta/x/contrato.pdf?sig=1"}}]}},
				{"sender": {"id": "ig-4"}, "message": {"mid": "m4", "attachments": [{"type": "video", "payload": {"url": "https://cdn.meta/v.mp4"}}]}}
			]
		}]
	}`)

	msgs, err := Instagram{}.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "ig-1", msgs[0].ContactID)
	assert.Equal(t, conversation.KindText, msgs[0].Kind)
	assert.Equal(t, "Oi", msgs[0].Text)

	assert.Equal(t, conversation.KindDocument, msgs[1].Kind)
	assert.Equal(t, "contrato.pdf", msgs[1].FileName)

	assert.Equal(t, conversation.KindUnsupported, msgs[2].Kind)
}

func TestInstagramMalformed(t *testing.T) {
	_, err := Instagram{}.Normalize([]byte(`{"entry":`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestWebChatNormalize(t *testing.T) {
	msgs, err := WebChat{ClientID: "visitor-9"}.Normalize([]byte(`{"message":"Boa tarde"}`))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "visitor-9", msgs[0].ContactID)
	assert.Equal(t, conversation.ChannelWeb, msgs[0].Channel)
	assert.NotEmpty(t, msgs[0].ID)

	msgs, err = WebChat{ClientID: "visitor-9"}.Normalize([]byte(`{"message":"  "}`))
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = WebChat{}.Normalize([]byte(`{"message":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
