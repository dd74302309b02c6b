package speech

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

// WhisperTranscriber 调用 OpenAI Whisper 转写接口
type WhisperTranscriber struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

// NewWhisperTranscriber 创建 Whisper 转写客户端
func NewWhisperTranscriber(config *speech.SpeechConfig, httpClient *http.Client) *WhisperTranscriber {
	return &WhisperTranscriber{config: config, httpClient: httpClient}
}

func (w *WhisperTranscriber) Name() string { return "openai" }

// Transcribe 直接上传内存中的录音，不落临时文件。
func (w *WhisperTranscriber) Transcribe(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
	if len(req.Audio) == 0 {
		return nil, ErrEmptyAudio
	}

	model := w.config.STTModel
	if model == "" {
		model = openai.Whisper1
	}

	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(req.Format)), ".")
	if format == "" {
		format = "webm"
	}

	client := newOpenAIClient(w.config, req.APIKey, w.httpClient)
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "input." + format,
		Reader:   bytes.NewReader(req.Audio),
		Language: req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription: %w", err)
	}

	return &speech.STTResponse{
		Text:      strings.TrimSpace(resp.Text),
		Language:  resp.Language,
		Duration:  resp.Duration,
		CreatedAt: time.Now(),
	}, nil
}
