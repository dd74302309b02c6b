package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voicebot/backend/internal/config"
	"github.com/zhouzirui/voicebot/backend/internal/model/catalog"
	speechmodel "github.com/zhouzirui/voicebot/backend/internal/model/speech"
	"github.com/zhouzirui/voicebot/backend/internal/service/assistant"
	"github.com/zhouzirui/voicebot/backend/internal/service/dialogue"
	"github.com/zhouzirui/voicebot/backend/internal/service/session"
	"github.com/zhouzirui/voicebot/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: stt, tts 或 turn")
	audioPath := flag.String("file", "", "stt/turn 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "合成音频输出路径 (默认根据格式自动生成)")
	modelID := flag.String("model", "", "turn 模式使用的模型，默认使用配置中的模型")
	apiKey := flag.String("key", "", "OpenAI API 密钥，默认使用 OPENAI_API_KEY")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	timeout := flag.Duration("timeout", 60*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "stt" && *mode != "tts" && *mode != "turn" {
		flag.Usage()
		log.Fatal("请通过 -mode=stt、-mode=tts 或 -mode=turn 指定测试模式")
	}

	key := strings.TrimSpace(*apiKey)
	if key == "" {
		key = cfg.OpenAI.APIKey
	}

	svc := speech.NewService(&speechmodel.SpeechConfig{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		STTLanguage:   cfg.Speech.STTLanguage,
		TTSProvider:   cfg.Speech.TTSProvider,
		TTSLanguage:   cfg.Speech.TTSLanguage,
		TTSVoice:      cfg.Speech.TTSVoice,
		GoogleBaseURL: cfg.Speech.GoogleBaseURL,
		Timeout:       cfg.Speech.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())

	switch *mode {
	case "stt":
		runSTT(ctx, svc, sessionID, key, *audioPath, *language)
	case "tts":
		runTTS(ctx, svc, sessionID, key, *text, *language, *outputPath)
	case "turn":
		runTurn(ctx, cfg, svc, key, *modelID, *audioPath, *outputPath)
	}
}

func readAudio(audioPath string) ([]byte, string) {
	if audioPath == "" {
		log.Fatal("需要通过 -file 指定音频文件路径")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	if format == "" {
		format = "webm"
	}
	return audio, format
}

func runSTT(ctx context.Context, svc *speech.Service, sessionID, apiKey, audioPath, language string) {
	audio, format := readAudio(audioPath)

	log.Printf("开始进行 STT 测试: session=%s format=%s bytes=%d", sessionID, format, len(audio))

	resp, err := svc.TranscribeAudio(ctx, &speechmodel.STTRequest{
		SessionID: sessionID,
		APIKey:    apiKey,
		Audio:     audio,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		log.Fatalf("STT 调用失败: %v", err)
	}

	log.Printf("STT 识别成功: text=%q language=%s duration=%.2fs", resp.Text, resp.Language, resp.Duration)
}

func runTTS(ctx context.Context, svc *speech.Service, sessionID, apiKey, text, language, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	log.Printf("开始进行 TTS 测试: session=%s textLength=%d", sessionID, len([]rune(text)))

	resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		APIKey:    apiKey,
		Text:      text,
		Language:  language,
	})
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	writeAudio(outputPath, resp)
}

// runTurn 走一遍完整的录音 -> 转写 -> 回复 -> 合成流程
func runTurn(ctx context.Context, cfg *config.Config, svc *speech.Service, apiKey, modelID, audioPath, outputPath string) {
	audio, format := readAudio(audioPath)

	models := catalog.NewMemoryStore(catalog.WithDefault(catalog.Seed(), cfg.Dialogue.DefaultModel))
	engine, err := dialogue.NewEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("对话引擎初始化失败: %v", err)
	}
	orch := assistant.NewOrchestrator(svc, dialogue.NewService(engine, models), svc, models)

	sessions := session.NewService(session.Options{
		SystemPrompt: cfg.Assistant.SystemPrompt,
		DefaultModel: models.Default().ID,
	})
	sess := sessions.Create(ctx)
	sess.SetAPIKey(apiKey)
	if modelID != "" {
		if _, err := orch.Dispatch(ctx, sess, assistant.Event{Kind: assistant.EventSelectModel, Model: modelID}); err != nil {
			log.Fatalf("选择模型失败: %v", err)
		}
	}

	outcome, err := orch.Cycle(ctx, sess, speechmodel.Recording{
		ID:       filepath.Base(audioPath),
		Audio:    audio,
		Format:   format,
		Duration: time.Second,
	})
	if err != nil {
		log.Fatalf("对话回合失败: %v", err)
	}

	log.Printf("回合完成: model=%s question=%q reply=%q", sess.Model(), outcome.Question, outcome.Reply)
	if outcome.Playback == nil {
		return
	}

	_, encoded, ok := strings.Cut(outcome.Playback.DataURI, ",")
	if !ok {
		log.Fatalf("无法解析播放片段: %.40s", outcome.Playback.DataURI)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		log.Fatalf("解码播放片段失败: %v", err)
	}
	writeAudio(outputPath, &speechmodel.TTSResponse{Audio: data, Format: outcome.Playback.Format})
}

func writeAudio(outputPath string, resp *speechmodel.TTSResponse) {
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}

	if err := os.WriteFile(outputPath, resp.Audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("音频已写入 %s (%d bytes)", outputPath, len(resp.Audio))
}
