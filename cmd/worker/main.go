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

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/jwalitptl/clinic-api/config"
	"github.com/jwalitptl/clinic-api/internal/repository/sqlstore"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/tracing"
	"github.com/jwalitptl/clinic-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	if err := run(cfg, log); err != nil {
		log.Fatal(err, "worker stopped with error")
	}
	log.Info("worker exited properly")
}

func run(cfg *config.Config, log *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.ToTracingConfig("clinic-outbox-worker"))
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	db, err := sqlstore.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log.Zerolog())
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to connect to Redis: %w", err), db.Close())
	}

	m := metrics.NewMetrics("clinic", "outbox", prometheus.DefaultRegisterer)
	outboxRepo := sqlstore.NewOutboxRepository(sqlstore.NewBaseRepository(db))

	hostname, _ := os.Hostname()
	workerLog := log.WithFields(map[string]interface{}{"worker_id": hostname})

	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(cfg.Redis.Channel), workerLog, m)
	if err != nil {
		return multierr.Combine(err, broker.Close(), db.Close())
	}
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, workerLog)

	srv := healthServer(cfg.Outbox.HealthPort, db, broker)

	var wg conc.WaitGroup
	wg.Go(func() { processor.Start(ctx) })
	wg.Go(func() { cleanup.Start(ctx) })
	wg.Go(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			workerLog.Error(err, "health server failed")
			stop()
		}
	})

	workerLog.Info("outbox worker started",
		"channel", cfg.Redis.Channel,
		"poll_interval", cfg.Outbox.PollInterval.String())

	<-ctx.Done()
	workerLog.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	wg.Wait()

	return multierr.Combine(
		err,
		shutdownTracing(shutdownCtx),
		broker.Close(),
		db.Close(),
	)
}

func healthServer(port int, db *sqlx.DB, broker messaging.Broker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := multierr.Combine(db.PingContext(ctx), broker.Ping(ctx)); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
