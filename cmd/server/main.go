package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	recapp "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/auth"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/event"
	"github.com/erp/reconciliation/internal/infrastructure/export"
	"github.com/erp/reconciliation/internal/infrastructure/lock"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/infrastructure/persistence"
	"github.com/erp/reconciliation/internal/infrastructure/storage"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/erp/reconciliation/internal/interfaces/http/handler"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/erp/reconciliation/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//	@title			Reconciliation API
//	@version		1.0
//	@description	Matching, allocation and exception handling for clearing entries

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

var _ recapp.Metrics = (*telemetry.ReconciliationMetrics)(nil)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// OTLP log export needs a logger to report its own startup, so the
	// final logger is rebuilt once the provider exists.
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogExportEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if core := logProvider.ZapCore(zapcore.InfoLevel); core != nil {
		if log, err = logger.New(logCfg, logger.WithCore(core)); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting reconciliation service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeEndpoint,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	locker, closeLocker := newLocker(ctx, cfg, log)
	defer closeLocker()

	recMetrics, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{
		Meter:   meterProvider.Meter("reconciliation"),
		Logger:  log,
		Backlog: telemetry.NewGormBacklogProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to register reconciliation metrics", zap.Error(err))
	}
	if meterProvider.IsEnabled() {
		recMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)
	}
	defer recMetrics.Stop()

	eventBus := event.NewInMemoryEventBus(log)
	repos := persistence.NewRepositories(db.DB)
	service := recapp.NewService(repos, persistence.NewGormTransactionScope(db.DB), locker,
		recapp.WithLogger(log),
		recapp.WithEventPublisher(eventBus),
		recapp.WithWorkbookRenderer(export.NewXLSXRenderer()),
		recapp.WithMetrics(recMetrics),
		recapp.WithAutoMatchLimits(cfg.Reconciliation.AutoMatchMaxEntries, cfg.Reconciliation.AutoMatchLockTTL),
	)

	historyRecorder := recapp.NewHistoryRecorder(repos.History, log)
	eventBus.Subscribe(historyRecorder)
	log.Info("Event handlers registered",
		zap.Strings("history_events", historyRecorder.EventTypes()),
	)

	if cfg.Reconciliation.ArchiveEnabled {
		objectStorage, err := storage.NewS3ObjectStorage(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare archive bucket", zap.Error(err))
		}
		eventBus.SubscribeAsync(recapp.NewFinalizedArchiver(service, objectStorage, cfg.Reconciliation.ArchivePrefix, log))
		log.Info("Finalized reconciliation archive enabled",
			zap.String("bucket", objectStorage.Bucket()),
			zap.String("prefix", cfg.Reconciliation.ArchivePrefix),
		)
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	httpMetrics, err := middleware.HTTPMetrics(meterProvider)
	if err != nil {
		log.Fatal("Failed to register HTTP metrics", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger:           log,
		HTTP:             cfg.HTTP,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   tracerProvider.IsEnabled(),
		ProfilingEnabled: profiler.IsEnabled(),
		Auth: middleware.JWTMiddlewareConfig{
			JWTService:      auth.NewJWTService(cfg.JWT),
			SkipPaths:       []string{router.HealthPath},
			AllowDevHeaders: cfg.App.IsDevelopment(),
			Logger:          log,
		},
		Metrics: httpMetrics,
	}, handler.NewReconciliationHandler(service), handler.NewHealthHandler(db))
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if stats, err := db.Stats(); err == nil {
		log.Info("Database pool at shutdown",
			zap.Int("open_connections", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
		)
	}

	// Providers flush last so spans and metrics from the drain are exported.
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newLocker returns the Redis-backed auto-match locker, falling back to an
// in-process locker when Redis is unreachable.
func newLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (recapp.Locker, func()) {
	client, err := lock.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, auto-match locks are local to this process",
			zap.String("addr", cfg.Redis.Addr()),
			zap.Error(err),
		)
		return lock.NewLocalLocker(), func() {}
	}
	log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	return lock.NewRedisLocker(client, lock.WithLogger(log)), func() {
		if err := client.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}
}
