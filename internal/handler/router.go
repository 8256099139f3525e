package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/handler/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/handler/geo"
	"github.com/zhouzirui/astro-tavern/backend/internal/handler/health"
	middlewarePkg "github.com/zhouzirui/astro-tavern/backend/internal/middleware"
	"github.com/zhouzirui/astro-tavern/backend/internal/observability"
	chatService "github.com/zhouzirui/astro-tavern/backend/internal/service/chat"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Chat    *chatService.Service
	Cities  geo.CitySearcher
	Metrics *observability.Metrics
	Logger  *zap.Logger
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
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	health.New(deps.Chat).RegisterRoutes(r)
	geo.New(deps.Cities, logger.Named("geo")).RegisterRoutes(r)
	chat.New(deps.Chat, logger.Named("chat")).RegisterRoutes(r)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	return r
}
