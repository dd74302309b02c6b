package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// DefaultSystemPrompt 是每个会话转录的第一条 system 指令。
const DefaultSystemPrompt = "You are a thoughtful assistant. Respond to all input in 25 words and answer in korea"

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Dialogue  DialogueConfig
	Speech    SpeechConfig
	Assistant AssistantConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	dialogue, err := loadDialogueConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL: getEnvOrDefault("OPENAI_BASE_URL", ""),
		},
		Dialogue: dialogue,
		Speech:   speech,
		Assistant: AssistantConfig{
			SystemPrompt: getEnvOrDefault("ASSISTANT_SYSTEM_PROMPT", DefaultSystemPrompt),
		},
		Log: logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// RecordRateLimit 是单个 IP 每分钟允许上传的录音次数，0 表示不限制。
	RecordRateLimit int
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	limit := 30
	if override, err := parseOptionalIntEnv("RECORD_RATE_LIMIT"); err != nil {
		return ServerConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return ServerConfig{}, fmt.Errorf("invalid RECORD_RATE_LIMIT value %d: must not be negative", *override)
		}
		limit = *override
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, RecordRateLimit: limit}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, RecordRateLimit: limit}, nil
}

// OpenAIConfig 描述 OpenAI 兼容接口的访问方式。
// APIKey 只是兜底值，页面侧边栏输入的密钥优先。
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// DialogueConfig 描述对话模型相关配置。
type DialogueConfig struct {
	Provider         string
	DefaultModel     string
	MaxContextTokens int
	Timeout          int // seconds
	Ark              ArkConfig
}

// ArkConfig 描述 Ark 大模型配置，仅在 DIALOGUE_PROVIDER=ark 时使用。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
	// Endpoints 把页面上可选的模型 ID 映射到 Ark 推理接入点。
	Endpoints map[string]string
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.defaultEndpoint() != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

func (c ArkConfig) defaultEndpoint() string {
	for _, id := range []string{"gpt-4", "gpt-3.5-turbo"} {
		if ep := c.Endpoints[id]; ep != "" {
			return ep
		}
	}
	return ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL_GPT4 或 AK/SK 组合")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.defaultEndpoint(),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadDialogueConfig() (DialogueConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("DIALOGUE_PROVIDER", "openai"))
	if provider != "openai" && provider != "ark" {
		return DialogueConfig{}, fmt.Errorf("invalid DIALOGUE_PROVIDER value %q: want openai or ark", provider)
	}

	maxTokens, err := parseOptionalIntEnv("DIALOGUE_MAX_CONTEXT_TOKENS")
	if err != nil {
		return DialogueConfig{}, err
	}
	budget := 0
	if maxTokens != nil && *maxTokens > 0 {
		budget = *maxTokens
	}

	timeout, err := parseOptionalIntEnv("DIALOGUE_TIMEOUT")
	if err != nil {
		return DialogueConfig{}, err
	}
	timeoutSeconds := 120
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return DialogueConfig{}, err
	}

	arkMaxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return DialogueConfig{}, err
	}

	endpoints := map[string]string{}
	if ep := strings.TrimSpace(os.Getenv("ARK_MODEL_GPT4")); ep != "" {
		endpoints["gpt-4"] = ep
	}
	if ep := strings.TrimSpace(os.Getenv("ARK_MODEL_GPT35")); ep != "" {
		endpoints["gpt-3.5-turbo"] = ep
	}

	return DialogueConfig{
		Provider:         provider,
		DefaultModel:     getEnvOrDefault("DIALOGUE_DEFAULT_MODEL", "gpt-4"),
		MaxContextTokens: budget,
		Timeout:          timeoutSeconds,
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			MaxTokens:   arkMaxTokens,
			Endpoints:   endpoints,
		},
	}, nil
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	TTSProvider   string
	TTSLanguage   string
	TTSVoice      string
	STTLanguage   string
	GoogleBaseURL string
	Timeout       int // seconds
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	provider := strings.ToLower(getEnvOrDefault("SPEECH_TTS_PROVIDER", "google"))
	if provider != "google" && provider != "openai" {
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_TTS_PROVIDER value %q: want google or openai", provider)
	}

	return SpeechConfig{
		TTSProvider:   provider,
		TTSLanguage:   getEnvOrDefault("SPEECH_TTS_LANGUAGE", "ko"),
		TTSVoice:      getEnvOrDefault("SPEECH_TTS_VOICE", "alloy"),
		STTLanguage:   getEnvOrDefault("SPEECH_STT_LANGUAGE", ""),
		GoogleBaseURL: getEnvOrDefault("SPEECH_GOOGLE_BASE_URL", "https://translate.google.com"),
		Timeout:       timeoutSeconds,
	}, nil
}

// AssistantConfig 描述会话层的默认设定。
type AssistantConfig struct {
	SystemPrompt string
}

// LogConfig 控制 zap 日志输出。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() (LogConfig, error) {
	dev, err := parseBoolEnv("LOG_DEVELOPMENT", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Development: dev,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
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
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
