package speech

// SpeechConfig 语音识别服务配置
type SpeechConfig struct {
	AppID          string `json:"appId"`            // 火山引擎 APP ID
	AccessToken    string `json:"accessToken"`      // 火山引擎 Access Token
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置的 API Key
	Endpoint       string `json:"endpoint"`         // ASR WebSocket 地址
	ConcurrentMode bool   `json:"concurrentMode"`   // 并发版资源（false 为小时版）

	ASRLanguage string `json:"asrLanguage"`

	Timeout int `json:"timeout"` // seconds
}
