package speech

import (
	"encoding/base64"
	"fmt"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

// NewPlayback 把音频编码为可自动播放的内联 audio 片段
func NewPlayback(audio []byte, format string) speech.Playback {
	if format == "" {
		format = "mp3"
	}
	mime := "audio/" + format
	dataURI := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(audio)

	return speech.Playback{
		Format:  format,
		DataURI: dataURI,
		HTML:    fmt.Sprintf(`<audio autoplay="true"><source src="%s" type="%s"></audio>`, dataURI, mime),
	}
}
