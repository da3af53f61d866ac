package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/danieloza/salonos/internal/config"
	"github.com/danieloza/salonos/internal/jobs"
	"github.com/danieloza/salonos/internal/observability/metrics"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

// Interval between sweep job fan-outs. Each tenant gets its own job so one
// slow tenant cannot starve the rest.
const sweepEnqueueInterval = time.Hour

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salonos worker",
		"env", cfg.Env,
		"workers", cfg.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	jobStore := jobs.NewPGStore(pool, cfg.JobMaxAttempts)
	tenantStore := tenancy.NewPGStore(pool)
	reservationRepo := reservations.NewPostgresRepository(pool)

	calendarSync := jobs.NewCalendarSyncHandler(cfg.CalendarWebhookURL, logger)
	expireSweep := jobs.NewExpireSweepHandler(reservationRepo, cfg.ReservationExpiryAge, logger)

	runner := jobs.NewRunner(jobStore, logger, bookingMetrics).
		WithWorkers(cfg.WorkerCount).
		WithPollInterval(cfg.JobPollInterval).
		WithStaleThreshold(cfg.JobStaleThreshold)
	runner.Register(jobs.TypeCalendarSync, calendarSync.Handle)
	runner.Register(jobs.TypeExpireSweep, expireSweep.Handle)

	go enqueueSweeps(ctx, tenantStore, jobStore, logger)

	runner.Start(ctx)
	logger.Info("worker stopped")
}

// enqueueSweeps fans one expire sweep job per tenant out on a fixed cadence.
func enqueueSweeps(ctx context.Context, tenants tenancy.Store, jobStore jobs.Store, logger *logging.Logger) {
	ticker := time.NewTicker(sweepEnqueueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			all, err := tenants.List(ctx)
			if err != nil {
				logger.Error("failed to list tenants for sweep", "error", err)
				continue
			}
			for _, tenant := range all {
				if err := jobStore.Enqueue(ctx, tenant.ID, jobs.TypeExpireSweep, nil); err != nil {
					logger.Error("failed to enqueue expire sweep", "error", err, "tenant_id", tenant.ID)
				}
			}
		}
	}
}
