package chat

import "time"

// Snapshot is an immutable copy of one assistant session.
type Snapshot struct {
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Transcript   []Utterance    `json:"transcript"`
	Chat         []ChatLogEntry `json:"chat"`
	ResetPending bool           `json:"resetPending"`
	HasAPIKey    bool           `json:"hasApiKey"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// LastReply returns the most recent assistant utterance, if any.
func (s Snapshot) LastReply() (Utterance, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i], true
		}
	}
	return Utterance{}, false
}
