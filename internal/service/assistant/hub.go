package assistant

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
	"github.com/zhouzirui/voicebot/backend/internal/service/session"
)

// Hub owns one Loop per live session.
type Hub struct {
	orch     *Orchestrator
	sessions *session.Service
	queue    int
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	loops  map[string]*Loop
	closed bool
}

// NewHub creates a hub. queue is the per-session event buffer.
func NewHub(orch *Orchestrator, sessions *session.Service, queue int, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		orch:     orch,
		sessions: sessions,
		queue:    queue,
		metrics:  m,
		logger:   logger,
		loops:    make(map[string]*Loop),
	}
}

// Open creates a session and starts its loop. After Shutdown the session is
// still created; its loop is never started and submissions fail with
// ErrLoopClosed.
func (h *Hub) Open(ctx context.Context) chat.Snapshot {
	sess := h.sessions.Create(ctx)

	h.mu.Lock()
	if !h.closed {
		h.loops[sess.ID()] = NewLoop(h.orch, sess, h.queue)
		h.metrics.SessionOpened()
	}
	h.mu.Unlock()

	h.logger.Info("session opened",
		zap.String("session", sess.ID()),
		zap.Int("live", h.sessions.Count()))
	return sess.Snapshot()
}

// Snapshot returns the current state of session id.
func (h *Hub) Snapshot(ctx context.Context, id string) (chat.Snapshot, error) {
	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		return chat.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// List returns snapshots of all live sessions.
func (h *Hub) List(ctx context.Context) []chat.Snapshot {
	return h.sessions.List(ctx)
}

// Submit routes ev to the loop of session id.
func (h *Hub) Submit(ctx context.Context, id string, ev Event) (*Outcome, error) {
	loop, err := h.loop(ctx, id)
	if err != nil {
		return nil, err
	}
	return loop.Submit(ctx, ev)
}

func (h *Hub) loop(ctx context.Context, id string) (*Loop, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrLoopClosed
	}
	if loop, ok := h.loops[id]; ok {
		return loop, nil
	}

	// 会话可能由其他入口创建
	sess, err := h.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	loop := NewLoop(h.orch, sess, h.queue)
	h.loops[id] = loop
	h.metrics.SessionOpened()
	return loop, nil
}

// Close stops the loop of session id and forgets the session.
func (h *Hub) Close(ctx context.Context, id string) error {
	if err := h.sessions.Delete(ctx, id); err != nil {
		return err
	}

	h.mu.Lock()
	loop, ok := h.loops[id]
	delete(h.loops, id)
	h.mu.Unlock()

	if ok {
		loop.Close()
		h.metrics.SessionClosed()
	}
	h.logger.Info("session closed",
		zap.String("session", id),
		zap.Int("live", h.sessions.Count()))
	return nil
}

// Shutdown stops every loop. Sessions stay readable, new events are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	loops := h.loops
	h.loops = make(map[string]*Loop)
	h.mu.Unlock()

	for _, loop := range loops {
		loop.Close()
		h.metrics.SessionClosed()
	}
}
