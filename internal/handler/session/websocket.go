package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
	"github.com/zhouzirui/voicebot/backend/internal/service/assistant"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

// WebSocketHandler 通过 WebSocket 接收页面事件并推送渲染结果
// readTimeout 是两次读取之间允许的空闲时间，不包含处理事件的耗时。
type WebSocketHandler struct {
	hub         Assistant
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	readTimeout time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub Assistant, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		logger:      logger,
		readTimeout: wsReadTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// RecordMessage 录音消息，audio 为 base64 编码
type RecordMessage struct {
	Audio       []byte `json:"audio"`
	Format      string `json:"format"`
	DurationMs  int64  `json:"durationMs"`
	RecordingID string `json:"recordingId"`
}

// SelectModelMessage 切换模型
type SelectModelMessage struct {
	Model string `json:"model"`
}

// SetKeyMessage 设置 API 密钥
type SetKeyMessage struct {
	APIKey string `json:"apiKey"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	snap, err := h.hub.Snapshot(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("new connection", zap.String("session", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	writes := make(chan outgoingMessage, 8)
	writerDone := make(chan struct{})
	go h.writeLoop(ctx, conn, writes, writerDone)

	send := func(msg outgoingMessage) {
		select {
		case writes <- msg:
		case <-writerDone:
		}
	}

	send(outgoingMessage{Type: "connected", SessionID: sessionID, Data: snap, Timestamp: time.Now().Unix()})

	for {
		// 事件处理可能超过读超时，每次读取前重新计时
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			send(errorMessage("session mismatch"))
			continue
		}

		ev, err := decodeEvent(&msg)
		if err != nil {
			send(errorMessage(err.Error()))
			continue
		}

		outcome, err := h.hub.Submit(ctx, sessionID, ev)
		if err != nil {
			h.logger.Warn("event failed", zap.String("session", sessionID), zap.String("event", msg.Type), zap.Error(err))
			send(outgoingMessage{
				Type:      "error",
				SessionID: sessionID,
				Data:      failureResponse{Error: err.Error(), Outcome: outcome},
				Timestamp: time.Now().Unix(),
			})
			continue
		}
		send(outgoingMessage{Type: "outcome", SessionID: sessionID, Data: outcome, Timestamp: time.Now().Unix()})
	}
}

// decodeEvent 把入站消息转换为会话事件
func decodeEvent(msg *inboundMessage) (assistant.Event, error) {
	ev := assistant.Event{Kind: assistant.EventKind(msg.Type)}

	switch ev.Kind {
	case assistant.EventRecord:
		var rec RecordMessage
		if err := unmarshalData(msg.Data, &rec); err != nil {
			return ev, errInvalidPayload(msg.Type)
		}
		ev.Recording = speech.Recording{
			ID:       rec.RecordingID,
			Audio:    rec.Audio,
			Format:   rec.Format,
			Duration: time.Duration(rec.DurationMs) * time.Millisecond,
		}
	case assistant.EventSelectModel:
		var sel SelectModelMessage
		if err := unmarshalData(msg.Data, &sel); err != nil {
			return ev, errInvalidPayload(msg.Type)
		}
		ev.Model = sel.Model
	case assistant.EventSetKey:
		var key SetKeyMessage
		if err := unmarshalData(msg.Data, &key); err != nil {
			return ev, errInvalidPayload(msg.Type)
		}
		ev.APIKey = key.APIKey
	case assistant.EventReset, assistant.EventRender:
	default:
		return ev, &payloadError{msg: "unsupported message type: " + msg.Type}
	}
	return ev, nil
}

func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

type payloadError struct{ msg string }

func (e *payloadError) Error() string { return e.msg }

func errInvalidPayload(kind string) error {
	return &payloadError{msg: "invalid " + kind + " payload"}
}

func errorMessage(message string) outgoingMessage {
	return outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"error": message},
		Timestamp: time.Now().Unix(),
	}
}

// writeLoop 串行写出消息并定期发送 ping。写失败时关闭连接，使读循环退出。
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, writes <-chan outgoingMessage, done chan<- struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-writes:
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
