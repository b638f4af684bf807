package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/config"
	"github.com/jwalitptl/clinic-api/internal/handler"
	appointmentHandler "github.com/jwalitptl/clinic-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-api/internal/handler/auth"
	clinicHandler "github.com/jwalitptl/clinic-api/internal/handler/clinic"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/repository/sqlstore"
	"github.com/jwalitptl/clinic-api/internal/router"
	appointmentService "github.com/jwalitptl/clinic-api/internal/service/appointment"
	authService "github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/internal/service/slot"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/tracing"
)

const serviceName = "clinic-api"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	if err := run(cfg, log); err != nil {
		log.Fatal(err, "api stopped with error")
	}
	log.Info("server exited properly")
}

func run(cfg *config.Config, log *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.ToTracingConfig(serviceName))
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	db, err := sqlstore.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		version, err := sqlstore.Migrate(ctx, db)
		if err != nil {
			return err
		}
		log.Info("database migrated", "version", version)
	}

	checks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}

	var broker messaging.Broker
	broker, err = redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.Zerolog())
	switch {
	case err == nil:
		checks["redis"] = broker.Ping
	case cfg.Redis.Optional:
		log.Warn("redis unavailable, continuing without it", "error", err.Error())
		broker, err = nil, nil
	default:
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slotCfg, err := cfg.Clinic.ToSlotConfig()
	if err != nil {
		return err
	}

	m := metrics.NewMetrics("clinic", "api", prometheus.DefaultRegisterer)
	base := sqlstore.NewBaseRepository(db)
	appointmentRepo := sqlstore.NewAppointmentRepository(base)
	userRepo := sqlstore.NewUserRepository(base)

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:         "availability-lookup",
		IsSuccessful: circuitbreaker.IgnoreCanceled,
		OnChange: func(name, from, to string) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		},
	})
	validator := slot.NewValidator(slotCfg, appointmentRepo,
		slot.WithBreaker(breaker),
		slot.WithMetrics(m),
		slot.WithLogger(log),
		slot.WithLookupTimeout(cfg.Clinic.LookupTimeout),
	)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authSvc := authService.NewService(userRepo, jwtSvc, log)
	appointmentSvc := appointmentService.NewService(appointmentRepo, validator, m, log)

	if err := middleware.RegisterValidators(); err != nil {
		return err
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		authHandler.NewHandler(authSvc),
		clinicHandler.NewHandler(appointmentSvc),
		appointmentHandler.NewHandler(appointmentSvc),
		handler.NewHandler(checks, prometheus.DefaultGatherer),
		router.RouterConfig{
			Mode:             ginMode(cfg.Server.Mode),
			ServiceName:      serviceName,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RateIdleTTL:      cfg.RateLimit.IdleTTL,
			CORSConfig:       corsConfig(cfg.CORS),
			MetricsPrefix:    "clinic_http",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		log.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	err = multierr.Append(err, shutdownTracing(shutdownCtx))
	if broker != nil {
		err = multierr.Append(err, broker.Close())
	}
	err = multierr.Append(err, db.Close())
	return err
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	}
	return gin.ReleaseMode
}

func corsConfig(c config.CORSConfig) middleware.CORSConfig {
	out := middleware.DefaultCORSConfig()
	if len(c.AllowedOrigins) > 0 {
		out.AllowOrigins = c.AllowedOrigins
	}
	if len(c.AllowedMethods) > 0 {
		out.AllowMethods = c.AllowedMethods
	}
	if len(c.AllowedHeaders) > 0 {
		out.AllowHeaders = c.AllowedHeaders
	}
	for _, o := range out.AllowOrigins {
		if strings.TrimSpace(o) == "*" {
			// browsers reject credentials with a wildcard origin
			out.AllowCredentials = false
		}
	}
	return out
}
