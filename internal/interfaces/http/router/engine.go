package router

import (
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/interfaces/http/handler"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthPath is served outside the authenticated API group
const HealthPath = "/health"

// EngineConfig assembles the HTTP stack
type EngineConfig struct {
	Logger           *zap.Logger
	HTTP             config.HTTPConfig
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	Auth             middleware.JWTMiddlewareConfig
	// Metrics is the HTTP metrics middleware; nil disables it
	Metrics gin.HandlerFunc
}

// NewEngine builds the gin engine with the middleware chain, the health
// probe and the versioned reconciliation API.
func NewEngine(cfg EngineConfig, reconciliation *handler.ReconciliationHandler, health *handler.HealthHandler) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
			SkipPaths:   []string{HealthPath},
		}),
		middleware.SpanErrorMarker(),
		middleware.CORS(cfg.HTTP),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics)
	}

	engine.GET(HealthPath, health.Health)

	authCfg := cfg.Auth
	if authCfg.Logger == nil {
		authCfg.Logger = log
	}
	NewRouter(engine,
		WithAPIMiddleware(
			middleware.JWTAuthMiddleware(authCfg),
			middleware.SpanIdentity(),
			middleware.Profiling(cfg.ProfilingEnabled),
		),
	).
		Register(NewReconciliationGroup(reconciliation)).
		Setup()

	return engine, nil
}
