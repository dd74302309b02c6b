package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

// OpenAISynthesizer 使用 OpenAI tts-1 合成 mp3
type OpenAISynthesizer struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

// NewOpenAISynthesizer 创建 OpenAI TTS 客户端
func NewOpenAISynthesizer(config *speech.SpeechConfig, httpClient *http.Client) *OpenAISynthesizer {
	return &OpenAISynthesizer{config: config, httpClient: httpClient}
}

func (o *OpenAISynthesizer) Name() string { return "openai" }

func (o *OpenAISynthesizer) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	voice := req.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}

	client := newOpenAIClient(o.config, req.APIKey, o.httpClient)
	raw, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer raw.Close()

	audio, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}

	return &speech.TTSResponse{Audio: audio, Format: "mp3", CreatedAt: time.Now()}, nil
}
