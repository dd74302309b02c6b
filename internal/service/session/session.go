package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/voicebot/backend/internal/model/chat"
)

var ErrSystemUtterance = errors.New("system utterances cannot be appended")

// Session holds the transcript and chat log of one browser tab.
//
// The transcript always starts with the seeded system utterance. Reset,
// Append and AppendExchange are the only transcript mutators.
type Session struct {
	id           string
	systemPrompt string
	now          func() time.Time

	mu            sync.RWMutex
	model         string
	apiKey        string
	transcript    []chat.Utterance
	chatLog       []chat.ChatLogEntry
	resetGuard    bool
	lastRecording string
	createdAt     time.Time
	updatedAt     time.Time
}

func newSession(id, systemPrompt, model string, now func() time.Time) *Session {
	created := now()
	s := &Session{
		id:           id,
		systemPrompt: systemPrompt,
		now:          now,
		model:        model,
		createdAt:    created,
		updatedAt:    created,
	}
	s.transcript = []chat.Utterance{s.seed()}
	s.chatLog = make([]chat.ChatLogEntry, 0, 16)
	return s
}

func (s *Session) seed() chat.Utterance {
	return chat.Utterance{Role: chat.RoleSystem, Text: s.systemPrompt, Timestamp: s.stamp()}
}

func (s *Session) stamp() string {
	return s.now().Format(chat.TimeLayout)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// NewUtterance stamps text with the session clock.
func (s *Session) NewUtterance(role chat.Role, text string) chat.Utterance {
	return chat.Utterance{Role: role, Text: text, Timestamp: s.stamp()}
}

// Reset clears the chat log, reseeds the transcript and arms the reset guard.
// The sidebar selection (model, API key) survives a reset.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = []chat.Utterance{s.seed()}
	s.chatLog = make([]chat.ChatLogEntry, 0, 16)
	s.resetGuard = true
	s.updatedAt = s.now()
}

// Append adds one utterance together with its chat bubble.
func (s *Session) Append(u chat.Utterance) error {
	entry, ok := u.Entry()
	if !ok {
		return ErrSystemUtterance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = append(s.transcript, u)
	s.chatLog = append(s.chatLog, entry)
	s.updatedAt = s.now()
	return nil
}

// AppendExchange adds a question and its reply in one step, so a failed
// generation never leaves a dangling user turn.
func (s *Session) AppendExchange(question, reply chat.Utterance) error {
	qEntry, ok := question.Entry()
	if !ok {
		return ErrSystemUtterance
	}
	rEntry, ok := reply.Entry()
	if !ok {
		return ErrSystemUtterance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = append(s.transcript, question, reply)
	s.chatLog = append(s.chatLog, qEntry, rEntry)
	s.updatedAt = s.now()
	return nil
}

// Transcript returns a copy of the ordered transcript.
func (s *Session) Transcript() []chat.Utterance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Utterance(nil), s.transcript...)
}

// ChatLog returns a copy of the ordered chat log.
func (s *Session) ChatLog() []chat.ChatLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.ChatLogEntry(nil), s.chatLog...)
}

// ConsumeResetGuard reports whether the guard was armed and disarms it.
func (s *Session) ConsumeResetGuard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.resetGuard
	s.resetGuard = false
	return armed
}

// MarkRecording remembers the id of the last recording that was answered.
func (s *Session) MarkRecording(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecording = id
}

// LastRecording returns the id passed to the latest MarkRecording.
func (s *Session) LastRecording() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRecording
}

// SelectModel stores the model chosen in the sidebar. Callers validate id.
func (s *Session) SelectModel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = id
	s.updatedAt = s.now()
}

// Model returns the selected model id.
func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetAPIKey stores the key typed into the sidebar. It is not validated.
func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(key)
	s.updatedAt = s.now()
}

// APIKey returns the key typed into the sidebar, possibly empty.
func (s *Session) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// Snapshot returns an immutable copy of the session state.
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return chat.Snapshot{
		ID:           s.id,
		Model:        s.model,
		Transcript:   append([]chat.Utterance(nil), s.transcript...),
		Chat:         append([]chat.ChatLogEntry(nil), s.chatLog...),
		ResetPending: s.resetGuard,
		HasAPIKey:    s.apiKey != "",
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}
