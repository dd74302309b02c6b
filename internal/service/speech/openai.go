package speech

import (
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

// newOpenAIClient 构造 OpenAI 客户端；请求内的密钥优先于配置中的兜底密钥。
func newOpenAIClient(cfg *speech.SpeechConfig, apiKey string, httpClient *http.Client) *openai.Client {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = cfg.APIKey
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(clientCfg)
}
