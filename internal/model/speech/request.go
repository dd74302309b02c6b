package speech

// STTRequest 语音识别请求
type STTRequest struct {
	SessionID string `json:"sessionId"`
	APIKey    string `json:"-"`
	Audio     []byte `json:"-"`
	Format    string `json:"format"`   // mp3, wav, webm, etc.
	Language  string `json:"language"` // ISO-639-1, optional
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId"`
	APIKey    string `json:"-"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`    // only used by the openai provider
	Language  string `json:"language"` // ko, en, etc.
}
