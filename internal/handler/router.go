package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/zhouzirui/voicebot/backend/internal/handler/catalog"
	"github.com/zhouzirui/voicebot/backend/internal/handler/page"
	"github.com/zhouzirui/voicebot/backend/internal/handler/session"
	"github.com/zhouzirui/voicebot/backend/internal/handler/speech"
	"github.com/zhouzirui/voicebot/backend/internal/metrics"
	catalogModel "github.com/zhouzirui/voicebot/backend/internal/model/catalog"
)

// Deps 聚合路由需要的服务
type Deps struct {
	Models    catalogModel.Store
	Assistant session.Assistant
	Speech    speech.SpeechService
	Sessions  speech.SessionLookup
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// RecordRateLimit 每个 IP 每分钟允许的录音上传次数，0 表示不限制
	RecordRateLimit int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", speech.APIKeyHeader},
		MaxAge:         300,
	}))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	page.New().RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		catalog.New(deps.Models).RegisterRoutes(api)
		session.New(deps.Assistant, deps.RecordRateLimit, logger.Named("session")).RegisterRoutes(api)

		// Register speech routes if speech service is available
		if deps.Speech != nil {
			speech.New(deps.Speech, deps.Sessions, logger.Named("speech")).RegisterRoutes(api)
		}
	})

	return r
}
