package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/voicebot/backend/internal/model/speech"
	sessionservice "github.com/zhouzirui/voicebot/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/voicebot/backend/internal/service/speech"
)

type fakeSpeechService struct {
	transcribe *speechmodel.STTRequest
	synth      *speechmodel.TTSRequest
	err        error
}

func (f *fakeSpeechService) TranscribeAudio(_ context.Context, req *speechmodel.STTRequest) (*speechmodel.STTResponse, error) {
	f.transcribe = req
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.STTResponse{SessionID: req.SessionID, Text: "ok"}, nil
}

func (f *fakeSpeechService) SynthesizeSpeech(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.synth = req
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{SessionID: req.SessionID, Audio: []byte("audio"), Format: "mp3"}, nil
}

func (f *fakeSpeechService) Providers() (string, string) { return "openai", "google" }

func newTranscribeRequest(t *testing.T, target string, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "sample.wav")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write([]byte("audio")); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestProcessTranscribeOverridesSession(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	handler := New(fakeSvc, nil, nil)

	req := newTranscribeRequest(t, "/speech/transcribe/test", map[string]string{"apiKey": "sk-form"})
	rr := httptest.NewRecorder()
	handler.processTranscribe(rr, req, "session-override")

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if fakeSvc.transcribe.SessionID != "session-override" {
		t.Fatalf("expected override session, got %s", fakeSvc.transcribe.SessionID)
	}
	if fakeSvc.transcribe.Format != "wav" || string(fakeSvc.transcribe.Audio) != "audio" {
		t.Fatalf("unexpected request %+v", fakeSvc.transcribe)
	}
	if fakeSvc.transcribe.APIKey != "sk-form" {
		t.Fatalf("expected form api key, got %q", fakeSvc.transcribe.APIKey)
	}
}

func TestTranscribeRequiresAudio(t *testing.T) {
	handler := New(&fakeSpeechService{}, nil, nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("sessionId", "abc")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTranscribeRemoteErrorIsBadGateway(t *testing.T) {
	handler := New(&fakeSpeechService{err: errors.New("401 invalid key")}, nil, nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, newTranscribeRequest(t, "/speech/transcribe", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestProcessSynthesizeUsesSessionKey(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	sessions := sessionservice.NewService(sessionservice.Options{})
	sess := sessions.Create(context.Background())
	sess.SetAPIKey("sk-session")

	handler := New(fakeSvc, sessions, nil)

	buf, err := json.Marshal(map[string]any{"text": "안녕하세요"})
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize/test", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	handler.processSynthesize(rr, req, sess.ID())

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if fakeSvc.synth.SessionID != sess.ID() || fakeSvc.synth.APIKey != "sk-session" {
		t.Fatalf("unexpected request %+v", fakeSvc.synth)
	}
	if rr.Header().Get("Content-Type") != "audio/mp3" || rr.Body.String() != "audio" {
		t.Fatalf("unexpected response %s %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}
}

func TestSynthesizeHeaderKeyWins(t *testing.T) {
	fakeSvc := &fakeSpeechService{}
	sessions := sessionservice.NewService(sessionservice.Options{})
	sess := sessions.Create(context.Background())
	sess.SetAPIKey("sk-session")

	handler := New(fakeSvc, sessions, nil)
	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"hi","sessionId":"`+sess.ID()+`"}`))
	req.Header.Set(APIKeyHeader, "sk-header")

	handler.processSynthesize(httptest.NewRecorder(), req, "")
	if fakeSvc.synth.APIKey != "sk-header" {
		t.Fatalf("expected header key, got %q", fakeSvc.synth.APIKey)
	}
}

func TestSynthesizeValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "invalid json", body: `{`, want: http.StatusBadRequest},
		{name: "blank text", body: `{"text":"  "}`, want: http.StatusBadRequest},
		{name: "service rejects", body: `{"text":"hi"}`, err: speechsvc.ErrEmptyText, want: http.StatusBadRequest},
		{name: "remote failure", body: `{"text":"hi"}`, err: errors.New("boom"), want: http.StatusBadGateway},
		{name: "timeout", body: `{"text":"hi"}`, err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := New(&fakeSpeechService{err: tc.err}, nil, nil)
			r := chi.NewRouter()
			handler.RegisterRoutes(r)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(tc.body)))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestHealthReportsProviders(t *testing.T) {
	handler := New(&fakeSpeechService{}, nil, nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/speech/health", nil))

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["status"] != "healthy" || body["stt"] != "openai" || body["tts"] != "google" {
		t.Fatalf("unexpected health body %+v", body)
	}
}
