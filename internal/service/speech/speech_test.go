package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	"github.com/zhouzirui/voicebot/backend/internal/model/speech"
)

func TestWhisperTranscriberUploadsBuffer(t *testing.T) {
	var gotAuth, gotModel, gotFilename, gotAudio string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm err: %v", err)
		}
		gotModel = r.FormValue("model")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile err: %v", err)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		data, _ := io.ReadAll(file)
		gotAudio = string(data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" 안녕 "}`)
	}))
	defer srv.Close()

	cfg := &speech.SpeechConfig{APIKey: "sk-env", BaseURL: srv.URL + "/v1"}
	tr := NewWhisperTranscriber(cfg, srv.Client())

	resp, err := tr.Transcribe(context.Background(), &speech.STTRequest{
		APIKey: "sk-session",
		Audio:  []byte("webm-bytes"),
		Format: "webm",
	})
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if resp.Text != "안녕" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if gotAuth != "Bearer sk-session" {
		t.Fatalf("expected session key, got %q", gotAuth)
	}
	if gotModel != openai.Whisper1 || gotFilename != "input.webm" || gotAudio != "webm-bytes" {
		t.Fatalf("unexpected upload: model=%s file=%s audio=%s", gotModel, gotFilename, gotAudio)
	}
}

func TestWhisperTranscriberFallsBackToConfigKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	tr := NewWhisperTranscriber(&speech.SpeechConfig{APIKey: "sk-env", BaseURL: srv.URL + "/v1"}, srv.Client())
	if _, err := tr.Transcribe(context.Background(), &speech.STTRequest{Audio: []byte("a")}); err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if gotAuth != "Bearer sk-env" {
		t.Fatalf("expected fallback key, got %q", gotAuth)
	}
}

func TestWhisperTranscriberWrapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	tr := NewWhisperTranscriber(&speech.SpeechConfig{BaseURL: srv.URL + "/v1"}, srv.Client())
	_, err := tr.Transcribe(context.Background(), &speech.STTRequest{Audio: []byte("a")})

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.HTTPStatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", apiErr.HTTPStatusCode)
	}
}

func TestGoogleSynthesizerConcatenatesChunks(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate_tts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("tl") != "ko" || q.Get("client") != "tw-ob" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		mu.Lock()
		queries = append(queries, q.Get("q"))
		mu.Unlock()
		_, _ = io.WriteString(w, "[mp3:"+q.Get("idx")+"]")
	}))
	defer srv.Close()

	syn := NewGoogleSynthesizer(&speech.SpeechConfig{GoogleBaseURL: srv.URL, TTSLanguage: "ko"}, srv.Client())
	text := strings.Repeat("안녕하세요 ", 30)

	resp, err := syn.Synthesize(context.Background(), &speech.TTSRequest{Text: text})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if len(queries) < 2 {
		t.Fatalf("expected several chunks, got %d", len(queries))
	}
	for _, q := range queries {
		if utf8.RuneCountInString(q) > googleMaxChunk {
			t.Fatalf("chunk too long: %d runes", utf8.RuneCountInString(q))
		}
	}
	if !strings.HasPrefix(string(resp.Audio), "[mp3:0][mp3:1]") {
		t.Fatalf("unexpected audio %q", resp.Audio)
	}
	if resp.Format != "mp3" {
		t.Fatalf("unexpected format %s", resp.Format)
	}
}

func TestGoogleSynthesizerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	syn := NewGoogleSynthesizer(&speech.SpeechConfig{GoogleBaseURL: srv.URL}, srv.Client())
	if _, err := syn.Synthesize(context.Background(), &speech.TTSRequest{Text: "안녕"}); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestOpenAISynthesizer(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "mp3-bytes")
	}))
	defer srv.Close()

	syn := NewOpenAISynthesizer(&speech.SpeechConfig{APIKey: "sk", BaseURL: srv.URL + "/v1"}, srv.Client())
	resp, err := syn.Synthesize(context.Background(), &speech.TTSRequest{Text: "안녕하세요"})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(resp.Audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", resp.Audio)
	}
	if !strings.Contains(gotBody, `"voice":"alloy"`) || !strings.Contains(gotBody, `"model":"tts-1"`) {
		t.Fatalf("unexpected request body %s", gotBody)
	}
}

func TestSplitText(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "short", text: "안녕하세요", limit: 10, want: []string{"안녕하세요"}},
		{name: "greedy", text: "aa bb cc dd", limit: 5, want: []string{"aa bb", "cc dd"}},
		{name: "long word", text: "abcdefgh xy", limit: 3, want: []string{"abc", "def", "gh", "xy"}},
		{name: "collapses whitespace", text: " a \n b ", limit: 10, want: []string{"a b"}},
		{name: "empty", text: "   ", limit: 10, want: []string{}},
	}

	for _, tc := range cases {
		if got := splitText(tc.text, tc.limit); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: splitText = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNewPlayback(t *testing.T) {
	p := NewPlayback([]byte("abc"), "")
	encoded := base64.StdEncoding.EncodeToString([]byte("abc"))

	if p.Format != "mp3" || p.DataURI != "data:audio/mp3;base64,"+encoded {
		t.Fatalf("unexpected playback %+v", p)
	}
	want := `<audio autoplay="true"><source src="data:audio/mp3;base64,` + encoded + `" type="audio/mp3"></audio>`
	if p.HTML != want {
		t.Fatalf("unexpected html %s", p.HTML)
	}
}

type fakeTranscriber struct {
	text string
	err  error
	got  *speech.STTRequest
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(_ context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &speech.STTResponse{Text: f.text}, nil
}

type fakeSynthesizer struct {
	got *speech.TTSRequest
}

func (f *fakeSynthesizer) Name() string { return "fake" }

func (f *fakeSynthesizer) Synthesize(_ context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	f.got = req
	return &speech.TTSResponse{Audio: []byte("mp3"), Format: "mp3"}, nil
}

func TestServiceAppliesDefaultsAndMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	tr := &fakeTranscriber{text: "안녕"}
	syn := &fakeSynthesizer{}
	svc := NewService(&speech.SpeechConfig{TTSLanguage: "ko", TTSVoice: "alloy", STTLanguage: "ko", Timeout: 5},
		WithMetrics(m), WithTranscriber(tr), WithSynthesizer(syn))

	stt, err := svc.TranscribeBuffer(context.Background(), "s1", "key", []byte("a"), "webm")
	if err != nil {
		t.Fatalf("TranscribeBuffer err: %v", err)
	}
	if stt.SessionID != "s1" || stt.Text != "안녕" || tr.got.Language != "ko" {
		t.Fatalf("unexpected transcription %+v / %+v", stt, tr.got)
	}

	if _, err := svc.SynthesizeToBuffer(context.Background(), "s1", "key", "안녕하세요"); err != nil {
		t.Fatalf("SynthesizeToBuffer err: %v", err)
	}
	if syn.got.Language != "ko" || syn.got.Voice != "alloy" || syn.got.APIKey != "key" {
		t.Fatalf("unexpected tts request %+v", syn.got)
	}

	if got := testutil.ToFloat64(m.RemoteCalls.WithLabelValues(metrics.StageTranscribe, "fake", "success")); got != 1 {
		t.Fatalf("expected transcribe metric, got %v", got)
	}
	if got := testutil.ToFloat64(m.RemoteCalls.WithLabelValues(metrics.StageSynthesize, "fake", "success")); got != 1 {
		t.Fatalf("expected synthesize metric, got %v", got)
	}
}

func TestServiceRejectsEmptyInput(t *testing.T) {
	tr := &fakeTranscriber{}
	svc := NewService(&speech.SpeechConfig{}, WithTranscriber(tr), WithSynthesizer(&fakeSynthesizer{}))

	if _, err := svc.TranscribeBuffer(context.Background(), "s", "", nil, "webm"); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
	if tr.got != nil {
		t.Fatal("transcriber must not be called for empty audio")
	}
	if _, err := svc.SynthesizeToBuffer(context.Background(), "s", "", "  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestNewServiceSelectsProvider(t *testing.T) {
	cases := map[string]string{"": "google", "google": "google", "openai": "openai"}
	for provider, want := range cases {
		svc := NewService(&speech.SpeechConfig{TTSProvider: provider})
		if _, tts := svc.Providers(); tts != want {
			t.Errorf("provider %q: got %s want %s", provider, tts, want)
		}
	}
}
