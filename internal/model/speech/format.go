package speech

import (
	"path/filepath"
	"strings"
)

// DefaultFormat 是无法识别时使用的录音格式
const DefaultFormat = "webm"

// InferFormat 推断上传音频的格式。明确的 MIME 类型优先于文件扩展名，
// 浏览器上传的文件名往往是固定的。
func InferFormat(filename, contentType string) string {
	if format := formatFromMIME(contentType); format != "" {
		return format
	}
	if format := formatFromExt(filename); format != "" {
		return format
	}
	return DefaultFormat
}

func formatFromMIME(contentType string) string {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch mime {
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/mp4", "video/mp4", "audio/aac":
		return "mp4"
	case "audio/x-m4a", "audio/m4a":
		return "m4a"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	default:
		return ""
	}
}

func formatFromExt(filename string) string {
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext {
	case "mp3", "wav", "webm", "ogg", "m4a", "mp4", "mpeg", "mpga":
		return ext
	default:
		return ""
	}
}
