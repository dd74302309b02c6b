package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// OpenAI 兼容配置（Whisper 与 OpenAI TTS 共用）
	APIKey  string `json:"-"`       // 兜底密钥，请求内的密钥优先
	BaseURL string `json:"baseUrl"` // 为空时使用官方地址

	// STT 配置
	STTModel    string `json:"sttModel"`
	STTLanguage string `json:"sttLanguage"`

	// TTS 配置
	TTSProvider   string `json:"ttsProvider"` // google 或 openai
	TTSLanguage   string `json:"ttsLanguage"`
	TTSVoice      string `json:"ttsVoice"`
	GoogleBaseURL string `json:"googleBaseUrl"`

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}
