package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/speech"
)

const (
	defaultEndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	audioChunkSize  = 6400 // 16kHz / 16bit / mono 下约 200ms
	codeOK          = 20000000
)

// ASRClient 火山引擎大模型语音识别 WebSocket 客户端
type ASRClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewASRClient 创建识别客户端
func NewASRClient(config *speech.SpeechConfig, logger *slog.Logger) *ASRClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ASRClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger: logger.With("component", "asr"),
	}
}

// asrRequest 首帧携带的识别参数
type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
	} `json:"request"`
}

type asrResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

// Transcribe 发送整段音频并等待最终识别结果
func (c *ASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	appID, token, err := c.credentials()
	if err != nil {
		return nil, err
	}
	if len(req.AudioData) == 0 {
		return nil, errors.New("no audio data to send")
	}

	endpoint := c.config.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", req.SessionID)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("connect ASR websocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Debug("connected", "logid", logid, "session", req.SessionID)
		}
	}

	// 关闭连接以打断阻塞中的读写
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal ASR request: %w", err)
	}
	if err := writeFrame(conn, newConfigFrame(payload)); err != nil {
		return nil, fmt.Errorf("send ASR request: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- sendAudio(conn, req.AudioData) }()

	result, err := c.receive(conn, req.SessionID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	select {
	case err := <-sendErr:
		if err != nil {
			c.logger.Warn("audio upload ended early", "session", req.SessionID, "error", err)
		}
	default:
	}
	return result, nil
}

func (c *ASRClient) credentials() (string, string, error) {
	if c.config == nil {
		return "", "", errors.New("火山引擎语音配置未初始化")
	}
	appID := strings.TrimSpace(c.config.AppID)
	token := strings.TrimSpace(c.config.AccessToken)
	if token == "" {
		token = strings.TrimSpace(c.config.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")
	}
	return appID, token, nil
}

func (c *ASRClient) buildRequest(req *speech.ASRRequest) *asrRequest {
	out := &asrRequest{}
	out.User.UID = req.SessionID

	out.Audio.Format = req.Format
	if out.Audio.Format == "" {
		out.Audio.Format = "wav"
	}
	out.Audio.Codec = req.Codec
	if out.Audio.Codec == "" {
		out.Audio.Codec = "raw"
	}
	out.Audio.Language = req.Language
	if out.Audio.Language == "" {
		out.Audio.Language = c.config.ASRLanguage
	}
	out.Audio.Rate = 16000
	out.Audio.Bits = 16
	out.Audio.Channel = 1

	out.Request.ModelName = "bigmodel"
	out.Request.EnableITN = true
	out.Request.EnablePunc = true
	out.Request.ShowUtterances = true
	out.Request.ResultType = "full"
	return out
}

// sendAudio 分包上传；服务端首帧占用序号 1，音频从 2 开始。
func sendAudio(conn *websocket.Conn, audio []byte) error {
	sequence := int32(2)
	for start := 0; start < len(audio); start += audioChunkSize {
		end := min(start+audioChunkSize, len(audio))
		last := end == len(audio)
		if err := writeFrame(conn, newAudioFrame(audio[start:end], sequence, last)); err != nil {
			return err
		}
		sequence++
	}
	return nil
}

func writeFrame(conn *websocket.Conn, f *Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *ASRClient) receive(conn *websocket.Conn, sessionID string) (*speech.ASRResponse, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read ASR response: %w", err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode ASR frame: %w", err)
		}

		switch frame.Header.MessageType {
		case ErrorMessage:
			return nil, fmt.Errorf("ASR error %d: %s", frame.ErrorCode, string(frame.Payload))

		case FullServerResponse:
			var result asrResult
			if err := json.Unmarshal(frame.Payload, &result); err != nil {
				c.logger.Warn("unreadable ASR payload", "session", sessionID, "error", err)
				continue
			}
			if result.Code != 0 && result.Code != codeOK {
				return nil, fmt.Errorf("ASR API error %d: %s", result.Code, result.Message)
			}

			candidate := result.Result.Text
			if candidate == "" {
				parts := make([]string, 0, len(result.Result.Utterances))
				for _, u := range result.Result.Utterances {
					parts = append(parts, u.Text)
				}
				candidate = strings.Join(parts, " ")
			}
			if candidate != "" {
				text = candidate
			}
			if result.AudioInfo.Duration > 0 {
				duration = result.AudioInfo.Duration
			}

			if frame.IsLast() {
				return &speech.ASRResponse{
					SessionID:  sessionID,
					Text:       strings.TrimSpace(text),
					Confidence: confidence(text),
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}

func confidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}
