package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appsettlement "github.com/storefront/backend/internal/application/settlement"
	"github.com/storefront/backend/internal/bootstrap"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	jobRebuildProjections = "rebuild-projections"
	jobExportLedger       = "export-ledger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if providers.Enabled() {
		otelCore := providers.ZapCore(logger.ParseLevel(cfg.Log.Level))
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, otelCore)
		}))
	}
	log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	if cfg.Telemetry.ProfilingEnabled {
		profiler, err := telemetry.StartProfiler(cfg.App.Name, cfg.Telemetry.PyroscopeEndpoint, log)
		if err != nil {
			log.Warn("profiler not started", zap.Error(err))
		} else {
			providers.EnableSpanProfiles()
			defer func() { _ = profiler.Stop() }()
		}
	}

	var meter metric.Meter
	if cfg.Telemetry.MetricsEnabled {
		meter = providers.Meter()
	}

	app, err := bootstrap.New(ctx, cfg, log, meter)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	jobs, err := newScheduler(cfg, app, log)
	if err != nil {
		_ = app.Close(context.Background())
		return err
	}

	if err := middleware.SetupValidator(); err != nil {
		_ = app.Close(context.Background())
		return fmt.Errorf("register validators: %w", err)
	}

	health := handler.NewHealthHandler(cfg.App.Name, version).
		AddCheck("database", app.Ping)

	engine, err := router.NewEngine(router.Options{
		Logger: log,
		JWT:    auth.NewJWTService(cfg.JWT),
		Meter:  meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     providers.Enabled(),
		},
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	},
		health,
		handler.NewAgentHandler(app.Service),
		handler.NewOrderHandler(app.Service),
		handler.NewLedgerHandler(app.Service, app.Exporter, cfg.Storage.PresignExpiration),
	)
	if err != nil {
		_ = app.Close(context.Background())
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if jobs != nil {
		jobs.Start()
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, srv.Shutdown(shutdownCtx))
		if jobs != nil {
			errs = append(errs, jobs.Stop())
		}
		errs = append(errs, app.Close(shutdownCtx), providers.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server exited")
	return nil
}

// newScheduler registers the nightly projection rebuild and the export of
// the previous business day. It returns nil when jobs are disabled.
func newScheduler(cfg *config.Config, app *bootstrap.App, log *zap.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	loc := app.Service.Location()
	s, err := scheduler.New(scheduler.Config{Location: loc, JobTimeout: cfg.Scheduler.JobTimeout}, log.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if cfg.Scheduler.RebuildSchedule != "" {
		err := s.Register(jobRebuildProjections, cfg.Scheduler.RebuildSchedule, func(ctx context.Context) error {
			res, err := app.Service.RebuildProjections(ctx)
			if err != nil {
				return err
			}
			logger.Enrich(ctx, log).Info("projections rebuilt",
				zap.Int("agents", res.Agents), zap.Int("updated", res.Updated))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Scheduler.ExportSchedule != "" {
		err := s.Register(jobExportLedger, cfg.Scheduler.ExportSchedule, func(ctx context.Context) error {
			var (
				res *appsettlement.ExportResult
				err error
			)
			telemetry.WithOperation(ctx, jobExportLedger, func(ctx context.Context) {
				res, err = app.Exporter.ExportDay(ctx, scheduler.PreviousDay(time.Now(), loc))
			})
			if err != nil {
				return err
			}
			logger.Enrich(ctx, log).Info("ledger day exported",
				zap.String("key", res.Key), zap.Int("entries", res.Entries))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}
