package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/voicebot/backend/internal/config"
	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// Options configures sessions created by a Service.
type Options struct {
	SystemPrompt string
	DefaultModel string
	Clock        func() time.Time
}

// Service keeps every live session in memory. Nothing survives a restart.
type Service struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService bootstraps the in-memory session registry.
func NewService(opts Options) *Service {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = config.DefaultSystemPrompt
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = "gpt-4"
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create provisions a fresh session seeded with the system prompt.
func (s *Service) Create(_ context.Context) *Session {
	sess := newSession(uuid.NewString(), s.opts.SystemPrompt, s.opts.DefaultModel, s.opts.Clock)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	return sess
}

// Get retrieves a session by identifier.
func (s *Service) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete drops a session.
func (s *Service) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns snapshots of every live session, oldest first.
func (s *Service) List(_ context.Context) []chat.Snapshot {
	s.mu.RLock()
	items := make([]chat.Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		items = append(items, sess.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
