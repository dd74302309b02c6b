package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/voicebot/backend/internal/config"
	"github.com/zhouzirui/voicebot/backend/internal/handler"
	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	"github.com/zhouzirui/voicebot/backend/internal/model/catalog"
	speechModel "github.com/zhouzirui/voicebot/backend/internal/model/speech"
	"github.com/zhouzirui/voicebot/backend/internal/service/assistant"
	"github.com/zhouzirui/voicebot/backend/internal/service/dialogue"
	"github.com/zhouzirui/voicebot/backend/internal/service/session"
	"github.com/zhouzirui/voicebot/backend/internal/service/speech"
)

// eventQueueSize 每个会话事件循环的缓冲长度
const eventQueueSize = 4

func main() {
	if err := run(); err != nil {
		log.Fatalf("voice assistant stopped: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	m := metrics.NewMetrics()

	models := catalog.NewMemoryStore(catalog.WithDefault(catalog.Seed(), cfg.Dialogue.DefaultModel))
	sessions := session.NewService(session.Options{
		SystemPrompt: cfg.Assistant.SystemPrompt,
		DefaultModel: models.Default().ID,
	})

	speechService := speech.NewService(&speechModel.SpeechConfig{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		STTLanguage:   cfg.Speech.STTLanguage,
		TTSProvider:   cfg.Speech.TTSProvider,
		TTSLanguage:   cfg.Speech.TTSLanguage,
		TTSVoice:      cfg.Speech.TTSVoice,
		GoogleBaseURL: cfg.Speech.GoogleBaseURL,
		Timeout:       cfg.Speech.Timeout,
	}, speech.WithMetrics(m), speech.WithLogger(logger.Named("speech")))
	stt, tts := speechService.Providers()
	logger.Info("speech service initialized", zap.String("stt", stt), zap.String("tts", tts))

	dialogueService, err := newDialogueService(ctx, cfg, models, m, logger.Named("dialogue"))
	if err != nil {
		return fmt.Errorf("failed to initialize dialogue service: %w", err)
	}
	logger.Info("dialogue service initialized",
		zap.String("provider", dialogueService.Provider()),
		zap.String("defaultModel", models.Default().ID))

	orch := assistant.NewOrchestrator(speechService, dialogueService, speechService, models,
		assistant.WithMetrics(m),
		assistant.WithLogger(logger.Named("assistant")))
	hub := assistant.NewHub(orch, sessions, eventQueueSize, m, logger.Named("hub"))
	defer hub.Shutdown()

	router := handler.NewRouter(handler.Deps{
		Models:          models,
		Assistant:       hub,
		Speech:          speechService,
		Sessions:        sessions,
		Metrics:         m,
		Logger:          logger,
		RecordRateLimit: cfg.Server.RecordRateLimit,
	})

	return startServer(ctx, logger, cfg.Server, router)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func newDialogueService(ctx context.Context, cfg *config.Config, models catalog.Store, m *metrics.Metrics, logger *zap.Logger) (*dialogue.Service, error) {
	engine, err := dialogue.NewEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []dialogue.Option{
		dialogue.WithMetrics(m),
		dialogue.WithLogger(logger),
	}
	if cfg.Dialogue.Timeout > 0 {
		opts = append(opts, dialogue.WithTimeout(time.Duration(cfg.Dialogue.Timeout)*time.Second))
	}
	if cfg.Dialogue.MaxContextTokens > 0 {
		counter, err := dialogue.NewTiktokenCounter(models.Default().ID)
		if err != nil {
			logger.Warn("token counter unavailable, context budget disabled", zap.Error(err))
		} else {
			opts = append(opts, dialogue.WithBudget(dialogue.NewBudget(cfg.Dialogue.MaxContextTokens, counter)))
		}
	}

	return dialogue.NewService(engine, models, opts...), nil
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("voice assistant listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("voice assistant stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
