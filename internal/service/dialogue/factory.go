package dialogue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zhouzirui/voicebot/backend/internal/config"
)

// NewEngine 按 DIALOGUE_PROVIDER 选择生成后端
func NewEngine(ctx context.Context, cfg *config.Config) (Engine, error) {
	switch cfg.Dialogue.Provider {
	case "ark":
		chatModel, err := cfg.Dialogue.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewChainEngine(ctx, "ark", chatModel, cfg.Dialogue.Ark.Endpoints)
	default:
		client := &http.Client{}
		if cfg.Dialogue.Timeout > 0 {
			client.Timeout = time.Duration(cfg.Dialogue.Timeout) * time.Second
		}
		return NewOpenAIEngine(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, client), nil
	}
}
