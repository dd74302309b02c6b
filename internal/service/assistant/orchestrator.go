package assistant

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	"github.com/zhouzirui/voicebot/backend/internal/model/catalog"
	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
	"github.com/zhouzirui/voicebot/backend/internal/service/dialogue"
	"github.com/zhouzirui/voicebot/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/voicebot/backend/internal/service/speech"
)

var ErrUnknownEvent = errors.New("unknown event")

// Skip reasons reported in Outcome.Skipped.
const (
	SkipEmpty     = "empty"
	SkipReset     = "reset"
	SkipDuplicate = "duplicate"
)

// EventKind 是页面可以触发的动作
type EventKind string

const (
	EventRecord      EventKind = "record"
	EventReset       EventKind = "reset"
	EventSelectModel EventKind = "select-model"
	EventSetKey      EventKind = "set-key"
	EventRender      EventKind = "render"
)

// Event 是一次用户动作。Recording 为零值表示没有新录音。
type Event struct {
	Kind      EventKind
	Recording speech.Recording
	Model     string
	APIKey    string
}

// Outcome 是一次渲染周期的结果
type Outcome struct {
	Snapshot  chat.Snapshot    `json:"session"`
	Processed bool             `json:"processed"`
	Skipped   string           `json:"skipped,omitempty"`
	Question  string           `json:"question,omitempty"`
	Reply     string           `json:"reply,omitempty"`
	ChatHTML  string           `json:"chatHtml"`
	Playback  *speech.Playback `json:"playback,omitempty"`
}

// Transcriber 把录音转为文本
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID, apiKey string, audio []byte, format string) (*speech.STTResponse, error)
}

// Responder 生成助手回复
type Responder interface {
	Reply(ctx context.Context, req *dialogue.Request) (string, error)
}

// Synthesizer 把回复合成为音频
type Synthesizer interface {
	SynthesizeToBuffer(ctx context.Context, sessionID, apiKey, text string) (*speech.TTSResponse, error)
}

// Orchestrator binds user events to transcription, generation and synthesis.
type Orchestrator struct {
	stt     Transcriber
	llm     Responder
	tts     Synthesizer
	models  catalog.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option 调整 Orchestrator 的依赖
type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator wires the three remote stages.
func NewOrchestrator(stt Transcriber, llm Responder, tts Synthesizer, models catalog.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stt:    stt,
		llm:    llm,
		tts:    tts,
		models: models,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatch applies the event to the session and then runs one render cycle
// with the event's recording.
func (o *Orchestrator) Dispatch(ctx context.Context, sess *session.Session, ev Event) (*Outcome, error) {
	switch ev.Kind {
	case EventRecord, EventRender:
	case EventReset:
		sess.Reset()
		o.metrics.SessionReset()
		o.logger.Info("session reset", zap.String("session", sess.ID()))
	case EventSelectModel:
		if _, ok := o.models.FindByID(ev.Model); !ok {
			return nil, fmt.Errorf("%w: %q", dialogue.ErrUnknownModel, ev.Model)
		}
		sess.SelectModel(ev.Model)
	case EventSetKey:
		sess.SetAPIKey(ev.APIKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}

	return o.Cycle(ctx, sess, ev.Recording)
}

// Cycle runs one render cycle.
//
// An empty recording or an armed reset guard skips processing; either way
// the guard is disarmed. A recording already answered is skipped too.
// Otherwise the recording is transcribed, answered and stored as one
// exchange, then the reply is synthesized. Transcription and generation
// errors leave the session untouched. A synthesis error is returned together
// with the outcome, because the exchange has already been stored.
func (o *Orchestrator) Cycle(ctx context.Context, sess *session.Session, rec speech.Recording) (*Outcome, error) {
	if rec.Empty() {
		sess.ConsumeResetGuard()
		return o.skip(sess, SkipEmpty)
	}
	if sess.ConsumeResetGuard() {
		if rec.ID != "" {
			sess.MarkRecording(rec.ID)
		}
		return o.skip(sess, SkipReset)
	}
	if rec.ID != "" && rec.ID == sess.LastRecording() {
		return o.skip(sess, SkipDuplicate)
	}

	apiKey := sess.APIKey()
	model := sess.Model()

	stt, err := o.stt.TranscribeBuffer(ctx, sess.ID(), apiKey, rec.Audio, rec.Format)
	if err != nil {
		o.metrics.TurnFailed(metrics.StageTranscribe)
		return nil, fmt.Errorf("transcribe recording: %w", err)
	}

	question := sess.NewUtterance(chat.RoleUser, stt.Text)
	pending := append(sess.Transcript(), question)

	reply, err := o.llm.Reply(ctx, &dialogue.Request{
		APIKey:     apiKey,
		Model:      model,
		Transcript: pending,
	})
	if err != nil {
		o.metrics.TurnFailed(metrics.StageDialogue)
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	answer := sess.NewUtterance(chat.RoleAssistant, reply)
	if err := sess.AppendExchange(question, answer); err != nil {
		return nil, err
	}
	sess.MarkRecording(rec.ID)

	outcome := &Outcome{Processed: true, Question: question.Text, Snapshot: sess.Snapshot()}
	outcome.ChatHTML, err = RenderChat(outcome.Snapshot.Chat)
	if err != nil {
		return nil, err
	}

	// 朗读转录中最新的一条助手回复
	latest, _ := outcome.Snapshot.LastReply()
	outcome.Reply = latest.Text

	audio, err := o.tts.SynthesizeToBuffer(ctx, sess.ID(), apiKey, latest.Text)
	if err != nil {
		o.metrics.TurnFailed(metrics.StageSynthesize)
		return outcome, fmt.Errorf("synthesize reply: %w", err)
	}

	playback := speechsvc.NewPlayback(audio.Audio, audio.Format)
	outcome.Playback = &playback

	o.metrics.TurnCompleted()
	o.logger.Info("turn completed",
		zap.String("session", sess.ID()),
		zap.String("model", model),
		zap.Int("turns", len(outcome.Snapshot.Chat)/2))
	return outcome, nil
}

func (o *Orchestrator) skip(sess *session.Session, reason string) (*Outcome, error) {
	o.metrics.TurnSkipped(reason)

	html, err := RenderChat(sess.ChatLog())
	if err != nil {
		return nil, err
	}
	return &Outcome{Snapshot: sess.Snapshot(), Skipped: reason, ChatHTML: html}, nil
}
