// Package http serves run history, probes and metrics for "kgeval serve".
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/kgeval/internal/interfaces/http/handlers"
	"github.com/turtacn/kgeval/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the dependencies of the route tree.  Nil handlers
// leave their routes unregistered.
type RouterConfig struct {
	Mode string

	HealthHandler *handlers.HealthHandler
	RunHandler    *handlers.RunHandler

	Logger           logging.Logger
	LoggingConfig    *middleware.LoggingConfig
	Metrics          *prometheus.EvalMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	logCfg := middleware.DefaultLoggingConfig()
	if cfg.LoggingConfig != nil {
		logCfg = *cfg.LoggingConfig
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogging(cfg.Logger, logCfg))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	registerRunRoutes(api, cfg.RunHandler)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: "NOT_FOUND", Message: "route not found"})
	})
	return r
}

func registerRunRoutes(g *gin.RouterGroup, h *handlers.RunHandler) {
	if h == nil {
		return
	}
	runs := g.Group("/runs")
	runs.GET("", h.List)
	runs.GET("/:id", h.Get)
}
