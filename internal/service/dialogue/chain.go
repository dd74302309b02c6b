package dialogue

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

// ChainEngine runs the transcript through an eino chain backed by any
// ChatModel (Ark in production). Catalog ids are mapped to provider model
// names through endpoints.
type ChainEngine struct {
	name      string
	endpoints map[string]string
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewChainEngine compiles the prompt → model chain once.
func NewChainEngine(ctx context.Context, name string, chatModel model.BaseChatModel, endpoints map[string]string) (*ChainEngine, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dialogue chain: %w", err)
	}

	return &ChainEngine{name: name, endpoints: endpoints, chain: runnable}, nil
}

func (e *ChainEngine) Name() string { return e.name }

// Reply ignores req.APIKey; chain providers authenticate with server credentials.
func (e *ChainEngine) Reply(ctx context.Context, req *Request) (string, error) {
	endpoint, ok := e.endpoints[req.Model]
	if !ok || endpoint == "" {
		return "", fmt.Errorf("%w: %q has no %s endpoint", ErrUnknownModel, req.Model, e.name)
	}

	input := map[string]any{"history": toSchemaMessages(req.Transcript)}
	msg, err := e.chain.Invoke(ctx, input, compose.WithChatModelOption(model.WithModel(endpoint)))
	if err != nil {
		return "", fmt.Errorf("failed to run dialogue chain: %w", err)
	}
	if msg == nil {
		return "", ErrEmptyReply
	}
	return msg.Content, nil
}

func toSchemaMessages(transcript []chat.Utterance) []*schema.Message {
	history := make([]*schema.Message, 0, len(transcript))
	for _, u := range transcript {
		switch u.Role {
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(u.Text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(u.Text, nil))
		default:
			history = append(history, schema.UserMessage(u.Text))
		}
	}
	return history
}
