package router

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/handler/prometheus"
	"github.com/igabaycare/care-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	handlers []Handler
}

// NewRouter builds the engine with the global middleware chain. Handlers
// attach their own auth and role checks per route.
func NewRouter(cfg *config.Config, metrics *prometheus.Handler, handlers ...Handler) (*Router, error) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	engine := gin.New()

	sizeCfg := middleware.DefaultSizeLimitConfig()
	sizeCfg.WebhookPrefixes = []string{"/api/v1/webhooks/"}
	if cfg.Server.MaxBodyBytes > 0 {
		sizeCfg.MaxBodySize = cfg.Server.MaxBodyBytes
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Sentry(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(cfg.CORS),
	)
	if cfg.RateLimit.Enabled {
		engine.Use(middleware.NewRateLimiter(cfg.RateLimit).RateLimit())
	}
	engine.Use(
		middleware.SizeLimit(sizeCfg),
		middleware.Timeout(cfg.Server.RequestTimeout),
		middleware.AuditContext(),
	)

	return &Router{engine: engine, handlers: handlers}, nil
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
