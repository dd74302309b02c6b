package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
	sessionservice "github.com/zhouzirui/voicebot/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/voicebot/backend/internal/service/speech"
	"github.com/zhouzirui/voicebot/backend/pkg/utils"
)

// APIKeyHeader 允许调用方直接携带 OpenAI 密钥
const APIKeyHeader = "X-OpenAI-Key"

const maxAudioBytes = 25 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	TranscribeAudio(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error)
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	Providers() (stt, tts string)
}

// SessionLookup 用于从会话中取出侧边栏输入的密钥
type SessionLookup interface {
	Get(ctx context.Context, id string) (*sessionservice.Session, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	sessions  SessionLookup
	logger    *zap.Logger
}

// New 创建语音处理器。sessions 可以为 nil。
func New(speechSvc SpeechService, sessions SessionLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		speechSvc: speechSvc,
		sessions:  sessions,
		logger:    logger,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		// STT 端点
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Post("/transcribe/{sessionID}", h.handleTranscribeWithSession)

		// TTS 端点
		speechRouter.Post("/synthesize", h.handleSynthesize)
		speechRouter.Post("/synthesize/{sessionID}", h.handleSynthesizeWithSession)

		speechRouter.Get("/health", h.handleHealth)
	})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	h.processTranscribe(w, r, "")
}

func (h *Handler) handleTranscribeWithSession(w http.ResponseWriter, r *http.Request) {
	h.processTranscribe(w, r, chi.URLParam(r, "sessionID"))
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, "")
}

func (h *Handler) handleSynthesizeWithSession(w http.ResponseWriter, r *http.Request) {
	h.processSynthesize(w, r, chi.URLParam(r, "sessionID"))
}

func (h *Handler) processTranscribe(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(audio) > maxAudioBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "audio file too large")
		return
	}

	sessionID := overrideSessionID
	if sessionID == "" {
		sessionID = r.FormValue("sessionId")
	}

	req := &speech.STTRequest{
		SessionID: sessionID,
		APIKey:    h.resolveAPIKey(r, sessionID, r.FormValue("apiKey")),
		Audio:     audio,
		Format:    speech.InferFormat(header.Filename, header.Header.Get("Content-Type")),
		Language:  r.FormValue("language"),
	}

	resp, err := h.speechSvc.TranscribeAudio(r.Context(), req)
	if err != nil {
		h.logger.Warn("transcription failed", zap.String("session", sessionID), zap.Error(err))
		h.respondServiceError(w, err, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) processSynthesize(w http.ResponseWriter, r *http.Request, overrideSessionID string) {
	var req speech.TTSRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if overrideSessionID != "" {
		req.SessionID = overrideSessionID
	}

	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	req.APIKey = h.resolveAPIKey(r, req.SessionID, "")

	resp, err := h.speechSvc.SynthesizeSpeech(r.Context(), &req)
	if err != nil {
		h.logger.Warn("synthesis failed", zap.String("session", req.SessionID), zap.Error(err))
		h.respondServiceError(w, err, "speech synthesis failed")
		return
	}

	format := resp.Format
	if format == "" {
		format = "mpeg"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+resp.Format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Audio); err != nil {
		h.logger.Warn("failed to write audio response", zap.Error(err))
	}
}

// resolveAPIKey 依次使用请求头、表单字段和会话中保存的密钥
func (h *Handler) resolveAPIKey(r *http.Request, sessionID, formKey string) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	if key := strings.TrimSpace(formKey); key != "" {
		return key
	}
	if h.sessions == nil || strings.TrimSpace(sessionID) == "" {
		return ""
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		return ""
	}
	return sess.APIKey()
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, speechsvc.ErrEmptyAudio), errors.Is(err, speechsvc.ErrEmptyText):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		utils.RespondError(w, http.StatusGatewayTimeout, message)
	default:
		utils.RespondError(w, http.StatusBadGateway, message+": "+err.Error())
	}
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stt, tts := h.speechSvc.Providers()
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
		"stt":     stt,
		"tts":     tts,
	})
}
