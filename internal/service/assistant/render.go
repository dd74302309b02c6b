package assistant

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

var chatTemplate = template.Must(template.New("chat").Parse(`{{range .}}{{if eq .Sender "user"}}<div style="display:flex;align-items:center;"><div style="background-color:#007AFF;color:white;border-radius:12px;padding:8px 12px;margin-right:8px;">{{.Message}}</div><div style="font-size:0.8rem;color:gray;">{{.Time}}</div></div>
{{else}}<div style="display:flex;align-items:center;justify-content:flex-end;"><div style="background-color:lightgray;border-radius:12px;padding:8px 12px;margin-left:8px;">{{.Message}}</div><div style="font-size:0.8rem;color:gray;">{{.Time}}</div></div>
{{end}}{{end}}`))

// RenderChat 按顺序渲染聊天气泡：用户靠左蓝色，助手靠右灰色。
func RenderChat(entries []chat.ChatLogEntry) (string, error) {
	var b strings.Builder
	if err := chatTemplate.Execute(&b, entries); err != nil {
		return "", fmt.Errorf("render chat: %w", err)
	}
	return b.String(), nil
}
