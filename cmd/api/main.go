package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/danieloza/salonos/internal/abuse"
	"github.com/danieloza/salonos/internal/api/router"
	"github.com/danieloza/salonos/internal/availability"
	"github.com/danieloza/salonos/internal/clients"
	appconfig "github.com/danieloza/salonos/internal/config"
	"github.com/danieloza/salonos/internal/conversion"
	"github.com/danieloza/salonos/internal/jobs"
	"github.com/danieloza/salonos/internal/observability/metrics"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/slots"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/internal/visits"
	"github.com/danieloza/salonos/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salonos API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(registry)

	tenantStore := tenancy.NewPGStore(pool)
	resolver := tenancy.NewResolver(tenantStore)
	if _, err := resolver.ResolveOrCreate(ctx, cfg.DefaultTenantSlug, cfg.DefaultTenantName); err != nil {
		logger.Error("failed to provision default tenant", "error", err)
		os.Exit(1)
	}

	availStore := availability.NewPGStore(pool)
	engine := availability.NewEngine(cfg.WorkStartHour, cfg.WorkEndHour)
	visitRepo := visits.NewPostgresRepository(pool)
	reservationRepo := reservations.NewPostgresRepository(pool)
	clientStore := clients.NewPGStore(pool)
	jobStore := jobs.NewPGStore(pool, cfg.JobMaxAttempts)

	guard := abuse.NewGuard(redisClient, abuse.Config{
		MaxPerIP:    cfg.PublicMaxPerIP,
		IPWindow:    cfg.PublicIPWindow,
		MaxPerPhone: cfg.PublicMaxPerPhone,
		PhoneWindow: cfg.PublicPhoneWindow,
	}, logger)

	coordinator := conversion.NewCoordinator(conversion.NewPGStore(pool), logger).
		WithClientRecorder(clients.NewRecorder(clientStore))
	auditor := conversion.NewAuditor(conversion.NewPGAuditStore(pool), logger)

	r := router.New(&router.Config{
		Logger:              logger,
		TenantResolver:      resolver,
		AvailabilityHandler: availability.NewHandler(availStore, logger),
		SlotsHandler:        slots.NewHandler(availStore, visitRepo, engine, logger),
		VisitsHandler:       visits.NewHandler(visitRepo, logger),
		ReservationsHandler: reservations.NewHandler(reservationRepo, guard, bookingMetrics, logger),
		ConversionHandler:   conversion.NewHandler(coordinator, auditor, bookingMetrics, logger),
		ClientsHandler:      clients.NewHandler(clientStore, logger),
		JobsHandler:         jobs.NewHandler(jobStore, logger),
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Metrics:             bookingMetrics,
		CORSAllowedOrigins:  cfg.AllowedOrigins,
		OperatorJWTSecret:   cfg.OperatorJWTSecret,
		PublicBurstPerIP:    cfg.PublicBurstPerIP,
		PublicBurstRatePerS: cfg.PublicBurstRatePerS,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
