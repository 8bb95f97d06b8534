// Package router assembles the gin engine and mounts the API handlers.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// APIBase prefixes every registered route
const APIBase = "/api/v1"

// RouteRegistrar mounts one handler's routes on the API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Options configures NewEngine
type Options struct {
	Logger         *zap.Logger
	JWT            *auth.JWTService
	Meter          metric.Meter // nil disables HTTP metrics
	Tracing        middleware.TracingConfig
	MaxBodySize    int64
	RequestTimeout time.Duration
	TrustedProxies []string
}

// NewEngine builds the gin engine with the full middleware chain and
// mounts registrars under /api/v1 behind bearer authentication.
// /api/v1/health stays public.
func NewEngine(opts Options, registrars ...RouteRegistrar) (*gin.Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	metrics, err := middleware.HTTPMetrics(opts.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(logger.Recovery(log), middleware.RequestID())
	engine.Use(middleware.Tracing(opts.Tracing)...)
	engine.Use(
		logger.AccessLog(log),
		metrics,
		middleware.Secure(),
		middleware.BodyLimit(opts.MaxBodySize),
		middleware.Timeout(opts.RequestTimeout),
	)

	api := engine.Group(APIBase, middleware.JWTAuth(middleware.JWTMiddlewareConfig{
		JWTService: opts.JWT,
		SkipPaths:  []string{APIBase + "/health"},
		Logger:     log,
	}))
	for _, r := range registrars {
		r.RegisterRoutes(api)
	}

	return engine, nil
}
