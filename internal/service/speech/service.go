package speech

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

var (
	ErrEmptyAudio = errors.New("audio is empty")
	ErrEmptyText  = errors.New("text is empty")
)

// Transcriber 把一段录音转写为文本
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error)
}

// Synthesizer 把文本合成为音频
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config      *speech.SpeechConfig
	transcriber Transcriber
	synthesizer Synthesizer
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// Option 调整 Service 的依赖
type Option func(*Service)

// WithMetrics 记录远程调用指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger 替换默认的 Nop 日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTranscriber 替换默认的 Whisper 转写
func WithTranscriber(t Transcriber) Option {
	return func(s *Service) { s.transcriber = t }
}

// WithSynthesizer 替换按配置选择的合成器
func WithSynthesizer(syn Synthesizer) Option {
	return func(s *Service) { s.synthesizer = syn }
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig, opts ...Option) *Service {
	if config == nil {
		config = &speech.SpeechConfig{}
	}

	httpClient := &http.Client{}
	s := &Service{
		config:      config,
		transcriber: NewWhisperTranscriber(config, httpClient),
		logger:      zap.NewNop(),
	}

	switch strings.ToLower(config.TTSProvider) {
	case "openai":
		s.synthesizer = NewOpenAISynthesizer(config, httpClient)
	default:
		s.synthesizer = NewGoogleSynthesizer(config, httpClient)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
	if req == nil || len(req.Audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if req.Language == "" {
		req.Language = s.config.STTLanguage
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	resp, err := s.transcriber.Transcribe(ctx, req)
	s.metrics.ObserveRemoteCall(metrics.StageTranscribe, s.transcriber.Name(), started, err)
	if err != nil {
		s.logger.Warn("transcription failed",
			zap.String("session", req.SessionID),
			zap.String("provider", s.transcriber.Name()),
			zap.Error(err))
		return nil, err
	}

	resp.SessionID = req.SessionID
	s.logger.Debug("transcribed audio",
		zap.String("session", req.SessionID),
		zap.Int("bytes", len(req.Audio)),
		zap.Duration("elapsed", time.Since(started)))
	return resp, nil
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if req.Language == "" {
		req.Language = s.config.TTSLanguage
	}
	if req.Voice == "" {
		req.Voice = s.config.TTSVoice
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	resp, err := s.synthesizer.Synthesize(ctx, req)
	s.metrics.ObserveRemoteCall(metrics.StageSynthesize, s.synthesizer.Name(), started, err)
	if err != nil {
		s.logger.Warn("synthesis failed",
			zap.String("session", req.SessionID),
			zap.String("provider", s.synthesizer.Name()),
			zap.Error(err))
		return nil, err
	}

	resp.SessionID = req.SessionID
	return resp, nil
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID, apiKey string, audio []byte, format string) (*speech.STTResponse, error) {
	return s.TranscribeAudio(ctx, &speech.STTRequest{
		SessionID: sessionID,
		APIKey:    apiKey,
		Audio:     audio,
		Format:    format,
	})
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, apiKey, text string) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		APIKey:    apiKey,
		Text:      text,
	})
}

// Providers 返回当前使用的转写与合成提供方
func (s *Service) Providers() (stt, tts string) {
	return s.transcriber.Name(), s.synthesizer.Name()
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
}
