package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
	"github.com/zhouzirui/voicebot/backend/internal/service/assistant"
	"github.com/zhouzirui/voicebot/backend/internal/service/dialogue"
	sessionservice "github.com/zhouzirui/voicebot/backend/internal/service/session"
	"github.com/zhouzirui/voicebot/backend/pkg/utils"
)

// maxRecordingBytes 单段录音的上限
const maxRecordingBytes = 25 << 20

// Assistant 抽象会话事件循环，便于测试替换
type Assistant interface {
	Open(ctx context.Context) chat.Snapshot
	Snapshot(ctx context.Context, id string) (chat.Snapshot, error)
	List(ctx context.Context) []chat.Snapshot
	Submit(ctx context.Context, id string, ev assistant.Event) (*assistant.Outcome, error)
	Close(ctx context.Context, id string) error
}

// Handler 会话相关的HTTP处理器
type Handler struct {
	hub         Assistant
	recordLimit int
	logger      *zap.Logger
	ws          *WebSocketHandler
}

// New 创建会话处理器。recordLimit 为每个 IP 每分钟的录音上传次数，0 表示不限制。
func New(hub Assistant, recordLimit int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:         hub,
		recordLimit: recordLimit,
		logger:      logger,
		ws:          NewWebSocketHandler(hub, logger.Named("websocket")),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(sr chi.Router) {
		sr.Get("/", h.handleList)
		sr.Post("/", h.handleCreate)
		sr.Route("/{sessionID}", func(s chi.Router) {
			s.Get("/", h.handleGet)
			s.Delete("/", h.handleDelete)

			record := s.With()
			if h.recordLimit > 0 {
				record = s.With(httprate.LimitByIP(h.recordLimit, time.Minute))
			}
			record.Post("/record", h.handleRecord)

			s.Post("/reset", h.handleReset)
			s.Put("/model", h.handleSelectModel)
			s.Put("/key", h.handleSetKey)
			s.Get("/ws", h.ws.handleWebSocket)
		})
	})
}

// handleCreate 创建会话
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	snap := h.hub.Open(r.Context())
	utils.RespondJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.hub.List(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.hub.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondFailure(w, nil, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondFailure(w, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecord 接收一段录音并运行一次完整的渲染周期
func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := parseRecording(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.submit(w, r, assistant.Event{Kind: assistant.EventRecord, Recording: rec})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, assistant.Event{Kind: assistant.EventReset})
}

func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Model string `json:"model"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Model) == "" {
		utils.RespondError(w, http.StatusBadRequest, "model is required")
		return
	}
	h.submit(w, r, assistant.Event{Kind: assistant.EventSelectModel, Model: payload.Model})
}

func (h *Handler) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIKey string `json:"apiKey"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, assistant.Event{Kind: assistant.EventSetKey, APIKey: payload.APIKey})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, ev assistant.Event) {
	sessionID := chi.URLParam(r, "sessionID")
	outcome, err := h.hub.Submit(r.Context(), sessionID, ev)
	if err != nil {
		h.logger.Warn("event failed",
			zap.String("session", sessionID),
			zap.String("event", string(ev.Kind)),
			zap.Error(err))
		h.respondFailure(w, outcome, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, outcome)
}

type failureResponse struct {
	Error   string             `json:"error"`
	Outcome *assistant.Outcome `json:"outcome,omitempty"`
}

// respondFailure 把业务错误映射为 HTTP 状态码。远程服务错误统一返回 502。
func (h *Handler) respondFailure(w http.ResponseWriter, outcome *assistant.Outcome, err error) {
	utils.RespondJSON(w, statusFor(err), failureResponse{Error: err.Error(), Outcome: outcome})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sessionservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dialogue.ErrUnknownModel), errors.Is(err, assistant.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrLoopClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// parseRecording 解析 multipart 表单：audio 文件、durationMs、recordingId。
// 缺少音频或时长为 0 时返回空录音。
func parseRecording(r *http.Request) (speech.Recording, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return speech.Recording{}, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	rec := speech.Recording{ID: strings.TrimSpace(r.FormValue("recordingId"))}

	if raw := strings.TrimSpace(r.FormValue("durationMs")); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return speech.Recording{}, fmt.Errorf("invalid durationMs %q", raw)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
	}

	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return rec, nil
	}
	if err != nil {
		return speech.Recording{}, fmt.Errorf("invalid audio file: %w", err)
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxRecordingBytes+1))
	if err != nil {
		return speech.Recording{}, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) > maxRecordingBytes {
		return speech.Recording{}, errors.New("audio file too large")
	}

	rec.Audio = audio
	rec.Format = speech.InferFormat(header.Filename, header.Header.Get("Content-Type"))
	return rec, nil
}
