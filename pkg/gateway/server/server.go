package server

import (
	"log/slog"
	"net/http"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/auth"
	"github.com/alpha-ultimate/yusra/pkg/gateway/billing"
	"github.com/alpha-ultimate/yusra/pkg/gateway/config"
	"github.com/alpha-ultimate/yusra/pkg/gateway/handlers"
	"github.com/alpha-ultimate/yusra/pkg/gateway/lifecycle"
	"github.com/alpha-ultimate/yusra/pkg/gateway/managers"
	"github.com/alpha-ultimate/yusra/pkg/gateway/mw"
	"github.com/alpha-ultimate/yusra/pkg/gateway/ratelimit"
	"github.com/alpha-ultimate/yusra/pkg/settings"
	"github.com/alpha-ultimate/yusra/pkg/store/memory"
)

// Deps are the server's external collaborators, built in main.
type Deps struct {
	Transport chat.Transport

	// DurableChat and DurableSettings are nil without a database; everything
	// then lives in process memory.
	DurableChat     chat.Store
	DurableSettings settings.Store

	Verifier auth.Verifier
	Plans    billing.PlanResolver
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	managers  *managers.Registry
	fallback  *memory.Store
	videos    *handlers.VideoTracker
	limiter   *ratelimit.Limiter
	lifecycle *lifecycle.Lifecycle
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		managers: managers.NewRegistry(managers.Config{
			Transport:    deps.Transport,
			Logger:       logger,
			Durable:      deps.DurableChat,
			TitleTimeout: cfg.TitleTimeout,
		}),
		fallback:  memory.New(),
		videos:    handlers.NewVideoTracker(deps.Transport, logger),
		lifecycle: &lifecycle.Lifecycle{},
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		s.limiter = ratelimit.New(ratelimit.Config{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		})
	}
	s.routes()
	return s
}

// Lifecycle exposes the drain flag for graceful shutdown.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("/v1/sessions", handlers.SessionsHandler{Managers: s.managers})
	s.mux.Handle("/v1/sessions/{id}", handlers.SessionHandler{Managers: s.managers})
	s.mux.Handle("POST /v1/sessions/{id}/messages", handlers.SubmitHandler{Managers: s.managers})
	s.mux.Handle("POST /v1/messages", handlers.SubmitHandler{Managers: s.managers})

	s.mux.Handle("/v1/settings", handlers.SettingsHandler{
		Durable:  s.deps.DurableSettings,
		Fallback: s.fallback,
	})

	s.mux.Handle("POST /v1/speech", handlers.SpeechHandler{Transport: s.deps.Transport})
	s.mux.Handle("POST /v1/transcribe", handlers.TranscribeHandler{Transport: s.deps.Transport})
	s.mux.Handle("POST /v1/vision", handlers.VisionHandler{Transport: s.deps.Transport})

	s.mux.Handle("POST /v1/videos", handlers.VideosHandler{Tracker: s.videos})
	s.mux.Handle("GET /v1/videos/{id}", handlers.VideoStatusHandler{Tracker: s.videos})

	s.mux.Handle("GET /v1/live", handlers.LiveHandler{
		Config:   s.cfg,
		Managers: s.managers,
		Durable:  s.deps.DurableSettings,
		Fallback: s.fallback,
		Logger:   s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.MaxBody(s.cfg.MaxBodyBytes, h)
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.cfg, s.deps.Verifier, s.deps.Plans, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
