package speech

import "time"

// STTResponse 语音识别响应
type STTResponse struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	Duration  float64   `json:"duration,omitempty"` // seconds, as reported by the provider
	CreatedAt time.Time `json:"createdAt"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	Audio     []byte    `json:"-"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"createdAt"`
}

// Playback is synthesized audio prepared for inline autoplay in the page.
type Playback struct {
	Format  string `json:"format"`
	DataURI string `json:"dataUri"`
	HTML    string `json:"html"`
}
