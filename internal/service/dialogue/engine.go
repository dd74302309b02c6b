package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	"github.com/zhouzirui/voicebot/backend/internal/model/catalog"
	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

var (
	ErrUnknownModel    = errors.New("unknown model")
	ErrEmptyReply      = errors.New("model returned no reply")
	ErrEmptyTranscript = errors.New("transcript is empty")
)

// Request 是一次生成调用的输入。Transcript 已经包含最新的用户发言。
type Request struct {
	APIKey     string
	Model      string
	Transcript []chat.Utterance
}

// Engine 是无状态的对话生成后端
type Engine interface {
	Name() string
	Reply(ctx context.Context, req *Request) (string, error)
}

// Service 在 Engine 之外负责模型校验、上下文裁剪、超时与指标。
type Service struct {
	engine  Engine
	models  catalog.Store
	budget  *Budget
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option 调整 Service 的依赖
type Option func(*Service)

func WithBudget(b *Budget) Option {
	return func(s *Service) { s.budget = b }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wraps engine with validation against the model catalog.
func NewService(engine Engine, models catalog.Store, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		models: models,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the backend name, e.g. "openai" or "ark".
func (s *Service) Provider() string {
	return s.engine.Name()
}

// Reply 生成助手回复。会话中的转录本身不会被裁剪。
func (s *Service) Reply(ctx context.Context, req *Request) (string, error) {
	if req == nil || len(req.Transcript) == 0 {
		return "", ErrEmptyTranscript
	}
	if _, ok := s.models.FindByID(req.Model); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
	}

	input := *req
	if s.budget != nil {
		input.Transcript = s.budget.Trim(req.Transcript)
		if dropped := len(req.Transcript) - len(input.Transcript); dropped > 0 {
			s.logger.Debug("trimmed dialogue context", zap.Int("dropped", dropped), zap.String("model", req.Model))
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := s.engine.Reply(ctx, &input)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	s.metrics.ObserveRemoteCall(metrics.StageDialogue, s.engine.Name(), started, err)
	if err != nil {
		s.logger.Warn("dialogue generation failed",
			zap.String("provider", s.engine.Name()),
			zap.String("model", req.Model),
			zap.Error(err))
		return "", err
	}

	s.logger.Debug("generated reply",
		zap.String("model", req.Model),
		zap.Int("turns", len(input.Transcript)),
		zap.Int("length", len(reply)))
	return reply, nil
}
