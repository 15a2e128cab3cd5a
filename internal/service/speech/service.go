package speech

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/speech"
)

// ErrDisabled 表示未配置语音识别凭证
var ErrDisabled = errors.New("speech recognition is not configured")

// Recognizer 抽象底层识别引擎，便于测试替换
type Recognizer interface {
	Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config     *speech.SpeechConfig
	recognizer Recognizer
	logger     *slog.Logger
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:     config,
		recognizer: NewASRClient(config, logger),
		logger:     logger.With("component", "speech"),
	}
}

// NewServiceWithRecognizer 使用自定义识别引擎
func NewServiceWithRecognizer(config *speech.SpeechConfig, recognizer Recognizer, logger *slog.Logger) *Service {
	svc := NewService(config, logger)
	svc.recognizer = recognizer
	return svc
}

// Enabled 是否具备调用识别服务的凭证
func (s *Service) Enabled() bool {
	if s == nil || s.config == nil {
		return false
	}
	return s.config.AppID != "" && (s.config.AccessToken != "" || s.config.APIKey != "")
}

// Transcribe 将一段已下载的音频转写为文本
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}

	format, codec := AudioFormat(mimeType)
	req := &speech.ASRRequest{
		SessionID: uuid.NewString(),
		AudioData: audio,
		Format:    format,
		Codec:     codec,
		Language:  s.config.ASRLanguage,
	}

	started := time.Now()
	resp, err := s.recognizer.Transcribe(ctx, req)
	if err != nil {
		return "", err
	}
	s.logger.Info("audio transcribed",
		"session", req.SessionID,
		"format", format,
		"bytes", len(audio),
		"chars", len(resp.Text),
		"elapsed", time.Since(started),
	)
	return resp.Text, nil
}

// AudioFormat 根据 MIME 类型推断识别服务的 format/codec；语音消息默认 ogg/opus。
func AudioFormat(mimeType string) (format, codec string) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3", "raw"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav", "raw"
	case "audio/pcm", "audio/l16":
		return "pcm", "raw"
	default:
		return "ogg", "opus"
	}
}
