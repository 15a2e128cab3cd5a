package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechModel "github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/speech"
)

// DefaultHandoffKeywords 是原有部署使用的转人工关键词。
var DefaultHandoffKeywords = []string{
	"atendente", "humano", "pessoa", "falar com alguem",
	"falar com alguém", "operador", "atendimento humano",
	"quero falar", "preciso falar", "transferir", "atender",
}

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Channels ChannelsConfig
	Handoff  HandoffConfig
	Storage  StorageConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Admin    AdminConfig
	Flags    FlagsConfig
	Media    MediaConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	channels, err := loadChannelsConfig()
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	flags, err := loadFlagsConfig()
	if err != nil {
		return nil, err
	}

	media, err := loadMediaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Speech:   speech,
		Channels: channels,
		Handoff:  loadHandoffConfig(),
		Storage:  StorageConfig{DatabaseURL: firstEnv("DATABASE_URL", "POSTGRES_URL")},
		Redis:    redis,
		AMQP: AMQPConfig{
			URL:      strings.TrimSpace(os.Getenv("AMQP_URL")),
			Exchange: getEnvOrDefault("AMQP_EXCHANGE", "mia.events"),
		},
		Admin: AdminConfig{Token: strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))},
		Flags: flags,
		Media: media,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	PipelineTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	timeout, err := parseDurationSecondsEnv("PIPELINE_TIMEOUT_SECONDS", 180*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port, PipelineTimeout: timeout}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, PipelineTimeout: timeout}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	VisionModel string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建对话模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	return c.newArkModel(ctx, c.Model)
}

// NewVisionModel 创建支持图片输入的模型，未单独配置时复用对话模型。
func (c AIConfig) NewVisionModel(ctx context.Context) (model.ChatModel, error) {
	name := c.VisionModel
	if name == "" {
		name = c.Model
	}
	return c.newArkModel(ctx, name)
}

func (c AIConfig) newArkModel(ctx context.Context, modelName string) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		val := c.Timeout
		timeout = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Timeout:     timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		val := 0.7
		temperature = &val
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		val := 500
		maxTokens = &val
	}

	timeout, err := parseDurationSecondsEnv("ARK_TIMEOUT_SECONDS", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       firstEnv("ARK_MODEL", "Model"),
		VisionModel: strings.TrimSpace(os.Getenv("ARK_VISION_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// SpeechConfig 描述语音识别服务相关配置
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	APIKey         string
	Endpoint       string
	ConcurrentMode bool
	ASRLanguage    string
	Timeout        int
	Enabled        bool
}

// ServiceConfig 转换为语音服务使用的配置模型
func (c SpeechConfig) ServiceConfig() *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		APIKey:         c.APIKey,
		Endpoint:       c.Endpoint,
		ConcurrentMode: c.ConcurrentMode,
		ASRLanguage:    c.ASRLanguage,
		Timeout:        c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 60
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		AppID:          appID,
		AccessToken:    accessToken,
		APIKey:         apiKey,
		Endpoint:       getEnvOrDefault("SPEECH_ASR_ENDPOINT", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"),
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "pt-BR"),
		Timeout:        timeoutSeconds,
		Enabled:        appID != "" && accessToken != "",
	}, nil
}

// ChannelsConfig 描述各消息渠道的凭证。
type ChannelsConfig struct {
	ZAPI           ZAPIConfig
	Instagram      InstagramConfig
	WebChatEnabled bool
	SendTimeout    time.Duration
}

// ZAPIConfig WhatsApp 网关（Z-API）实例凭证
type ZAPIConfig struct {
	InstanceID  string
	Token       string
	ClientToken string
	BaseURL     string
}

// Enabled 表示是否可以发送 WhatsApp 消息
func (c ZAPIConfig) Enabled() bool {
	return c.InstanceID != "" && c.Token != ""
}

// InstagramConfig Meta Graph 接口凭证
type InstagramConfig struct {
	AccessToken string
	PageID      string
	VerifyToken string
	GraphURL    string
}

// Enabled 表示是否可以发送 Instagram 消息
func (c InstagramConfig) Enabled() bool {
	return c.AccessToken != "" && c.PageID != ""
}

func loadChannelsConfig() (ChannelsConfig, error) {
	webChat, err := parseBoolEnv("WEBCHAT_ENABLED", false)
	if err != nil {
		return ChannelsConfig{}, err
	}

	sendTimeout, err := parseDurationSecondsEnv("SEND_TIMEOUT_SECONDS", 30*time.Second)
	if err != nil {
		return ChannelsConfig{}, err
	}

	return ChannelsConfig{
		ZAPI: ZAPIConfig{
			InstanceID:  strings.TrimSpace(os.Getenv("ZAPI_INSTANCE_ID")),
			Token:       strings.TrimSpace(os.Getenv("ZAPI_TOKEN")),
			ClientToken: strings.TrimSpace(os.Getenv("ZAPI_CLIENT_TOKEN")),
			BaseURL:     getEnvOrDefault("ZAPI_BASE_URL", "https://api.z-api.io"),
		},
		Instagram: InstagramConfig{
			AccessToken: strings.TrimSpace(os.Getenv("INSTAGRAM_ACCESS_TOKEN")),
			PageID:      strings.TrimSpace(os.Getenv("INSTAGRAM_PAGE_ID")),
			VerifyToken: getEnvOrDefault("WEBHOOK_VERIFY_TOKEN", "mia-verify-token"),
			GraphURL:    getEnvOrDefault("INSTAGRAM_GRAPH_URL", "https://graph.facebook.com/v18.0"),
		},
		WebChatEnabled: webChat,
		SendTimeout:    sendTimeout,
	}, nil
}

// HandoffConfig 描述转人工策略。
type HandoffConfig struct {
	OperatorPhone   string
	OperatorChannel string
	Keywords        []string
	SummaryTurns    int
}

func loadHandoffConfig() HandoffConfig {
	keywords := DefaultHandoffKeywords
	if raw := strings.TrimSpace(os.Getenv("HANDOFF_KEYWORDS")); raw != "" {
		keywords = splitList(raw)
	}

	return HandoffConfig{
		OperatorPhone:   getEnvOrDefault("OPERATOR_PHONE", "18572081139"),
		OperatorChannel: getEnvOrDefault("OPERATOR_CHANNEL", "whatsapp"),
		Keywords:        keywords,
		SummaryTurns:    10,
	}
}

// StorageConfig 选择持久化存储，DatabaseURL 为空时仅保存在内存中
type StorageConfig struct {
	DatabaseURL string
}

// RedisConfig 重复投递去重配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	DedupTTL time.Duration
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return RedisConfig{}, err
	}
	dbIndex := 0
	if db != nil {
		dbIndex = *db
	}

	ttl, err := parseDurationSecondsEnv("DEDUP_TTL_SECONDS", 10*time.Minute)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       dbIndex,
		DedupTTL: ttl,
	}, nil
}

// AMQPConfig 领域事件发布配置，URL 为空时不发布
type AMQPConfig struct {
	URL      string
	Exchange string
}

// AdminConfig 控制接口的访问令牌，Token 为空时不挂载控制接口
type AdminConfig struct {
	Token string
}

// FlagsConfig 开关配置在内存中的缓存时长
type FlagsConfig struct {
	CacheTTL time.Duration
}

func loadFlagsConfig() (FlagsConfig, error) {
	ttl, err := parseDurationMillisEnv("FLAGS_CACHE_TTL_MS", 2*time.Second)
	if err != nil {
		return FlagsConfig{}, err
	}
	return FlagsConfig{CacheTTL: ttl}, nil
}

// MediaConfig 媒体下载的超时与大小限制
type MediaConfig struct {
	MaxBytes     int64
	FetchTimeout time.Duration
}

func loadMediaConfig() (MediaConfig, error) {
	maxBytes, err := parseOptionalIntEnv("MEDIA_MAX_BYTES")
	if err != nil {
		return MediaConfig{}, err
	}
	limit := int64(25 << 20)
	if maxBytes != nil && *maxBytes > 0 {
		limit = int64(*maxBytes)
	}

	timeout, err := parseDurationSecondsEnv("MEDIA_FETCH_TIMEOUT_SECONDS", 60*time.Second)
	if err != nil {
		return MediaConfig{}, err
	}

	return MediaConfig{MaxBytes: limit, FetchTimeout: timeout}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseDurationSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	if *val < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *val)
	}
	return time.Duration(*val) * time.Second, nil
}

func parseDurationMillisEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	if *val < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *val)
	}
	return time.Duration(*val) * time.Millisecond, nil
}
