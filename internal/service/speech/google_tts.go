package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

// googleMaxChunk 是 translate_tts 单次请求可接受的最大字符数
const googleMaxChunk = 100

// GoogleSynthesizer 调用 Google Translate 的 TTS 接口（与 gTTS 相同的端点）
type GoogleSynthesizer struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// NewGoogleSynthesizer 创建 Google TTS 客户端
func NewGoogleSynthesizer(config *speech.SpeechConfig, httpClient *http.Client) *GoogleSynthesizer {
	baseURL := strings.TrimRight(config.GoogleBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://translate.google.com"
	}
	language := config.TTSLanguage
	if language == "" {
		language = "ko"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleSynthesizer{baseURL: baseURL, language: language, httpClient: httpClient}
}

func (g *GoogleSynthesizer) Name() string { return "google" }

// Synthesize 分段请求并按顺序拼接 mp3 片段
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	language := req.Language
	if language == "" {
		language = g.language
	}

	chunks := splitText(text, googleMaxChunk)
	var audio bytes.Buffer
	for idx, chunk := range chunks {
		if err := g.fetchChunk(ctx, &audio, chunk, language, idx, len(chunks)); err != nil {
			return nil, fmt.Errorf("google tts chunk %d/%d: %w", idx+1, len(chunks), err)
		}
	}

	return &speech.TTSResponse{Audio: audio.Bytes(), Format: "mp3", CreatedAt: time.Now()}, nil
}

func (g *GoogleSynthesizer) fetchChunk(ctx context.Context, dst io.Writer, chunk, language string, idx, total int) error {
	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("q", chunk)
	query.Set("tl", language)
	query.Set("client", "tw-ob")
	query.Set("total", strconv.Itoa(total))
	query.Set("idx", strconv.Itoa(idx))
	query.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_tts?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")
	httpReq.Header.Set("Referer", g.baseURL+"/")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return nil
}

// splitText 按空白切分并贪心合并为不超过 limit 个字符的片段，超长单词按字符硬切。
func splitText(text string, limit int) []string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	chunks := make([]string, 0, len(words)/8+1)

	var current strings.Builder
	currentLen := 0
	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range words {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(runes) == 0 {
			continue
		}

		needed := len(runes)
		if currentLen > 0 {
			needed++
		}
		if currentLen+needed > limit {
			flush()
			needed = len(runes)
		}
		if currentLen > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(string(runes))
		currentLen += needed
	}
	flush()

	return chunks
}
