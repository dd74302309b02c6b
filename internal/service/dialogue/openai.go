package dialogue

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

// OpenAIEngine 调用 OpenAI Chat Completions 接口
type OpenAIEngine struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIEngine creates an engine. apiKey is the fallback used when the
// request carries no key of its own.
func NewOpenAIEngine(apiKey, baseURL string, httpClient *http.Client) *OpenAIEngine {
	return &OpenAIEngine{apiKey: apiKey, baseURL: baseURL, httpClient: httpClient}
}

func (e *OpenAIEngine) Name() string { return "openai" }

func (e *OpenAIEngine) Reply(ctx context.Context, req *Request) (string, error) {
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		key = e.apiKey
	}

	cfg := openai.DefaultConfig(key)
	if e.baseURL != "" {
		cfg.BaseURL = e.baseURL
	}
	if e.httpClient != nil {
		cfg.HTTPClient = e.httpClient
	}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Transcript),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(transcript []chat.Utterance) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, u := range transcript {
		role := openai.ChatMessageRoleUser
		switch u.Role {
		case chat.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: u.Text})
	}
	return messages
}
