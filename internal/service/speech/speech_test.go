package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/speech"
)

func TestFrameRoundTrip(t *testing.T) {
	original := newAudioFrame([]byte("pcm-bytes"), 7, true)

	data, err := EncodeFrame(original)
	require.NoError(t, err)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, AudioOnlyRequest, decoded.Header.MessageType)
	assert.Equal(t, int32(-7), decoded.Sequence)
	assert.True(t, decoded.IsLast())
	assert.Equal(t, []byte("pcm-bytes"), decoded.Payload)
}

func TestDecodeFrameErrorMessage(t *testing.T) {
	data, err := EncodeFrame(&Frame{
		Header:    Header{MessageType: ErrorMessage},
		ErrorCode: 45000001,
		Payload:   []byte("invalid audio"),
	})
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(45000001), frame.ErrorCode)
	assert.Equal(t, "invalid audio", string(frame.Payload))
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte{0x11})
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0x21, 0x10, 0x00, 0x00, 0, 0, 0, 0})
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0x11, 0x10, 0x00, 0x00, 0, 0, 0, 9, 'a'})
	assert.Error(t, err)
}

func TestAudioFormat(t *testing.T) {
	cases := map[string][2]string{
		"audio/ogg; codecs=opus": {"ogg", "opus"},
		"audio/mpeg":             {"mp3", "raw"},
		"audio/x-wav":            {"wav", "raw"},
		"":                       {"ogg", "opus"},
	}
	for mimeType, want := range cases {
		format, codec := AudioFormat(mimeType)
		assert.Equal(t, want[0], format, mimeType)
		assert.Equal(t, want[1], codec, mimeType)
	}
}

// fakeASRServer speaks the binary frame protocol and answers with text once
// the last audio frame arrives.
func fakeASRServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") == "" {
			http.Error(w, "missing app key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := DecodeFrame(data)
			if err != nil {
				return
			}
			if frame.Header.MessageType == FullClientRequest {
				var req asrRequest
				if json.Unmarshal(frame.Payload, &req) != nil || req.Request.ModelName != "bigmodel" {
					return
				}
				continue
			}
			if frame.IsLast() {
				payload, _ := json.Marshal(map[string]any{
					"result":     map[string]any{"text": text},
					"audio_info": map[string]any{"duration": 1200},
				})
				reply, _ := EncodeFrame(&Frame{
					Header: Header{
						MessageType:         FullServerResponse,
						MessageFlags:        NegativeSequenceNumber,
						SerializationMethod: JSONSerialization,
						CompressionMethod:   GzipCompression,
					},
					Sequence: -1,
					Payload:  payload,
				})
				_ = conn.WriteMessage(websocket.BinaryMessage, reply)
				return
			}
		}
	}))
}

func TestServiceTranscribeAgainstFakeServer(t *testing.T) {
	server := fakeASRServer(t, " Olá, quero um orçamento ")
	defer server.Close()

	cfg := &speech.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		Endpoint:    "ws" + strings.TrimPrefix(server.URL, "http"),
		ASRLanguage: "pt-BR",
		Timeout:     5,
	}
	svc := NewService(cfg, nil)

	audio := make([]byte, audioChunkSize*2+10)
	text, err := svc.Transcribe(context.Background(), audio, "audio/ogg")
	require.NoError(t, err)
	assert.Equal(t, "Olá, quero um orçamento", text)
}

func TestServiceDisabledWithoutCredentials(t *testing.T) {
	svc := NewService(&speech.SpeechConfig{}, nil)
	_, err := svc.Transcribe(context.Background(), []byte{1}, "audio/ogg")
	assert.ErrorIs(t, err, ErrDisabled)
}

type failingRecognizer struct{}

func (failingRecognizer) Transcribe(context.Context, *speech.ASRRequest) (*speech.ASRResponse, error) {
	return nil, errors.New("upstream closed")
}

func TestServicePropagatesRecognizerError(t *testing.T) {
	cfg := &speech.SpeechConfig{AppID: "a", AccessToken: "t"}
	svc := NewServiceWithRecognizer(cfg, failingRecognizer{}, nil)
	_, err := svc.Transcribe(context.Background(), []byte{1}, "audio/ogg")
	assert.EqualError(t, err, "upstream closed")
}
