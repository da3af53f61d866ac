package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danieloza/salonos/internal/availability"
	"github.com/danieloza/salonos/internal/clients"
	"github.com/danieloza/salonos/internal/conversion"
	httpmiddleware "github.com/danieloza/salonos/internal/http/middleware"
	"github.com/danieloza/salonos/internal/jobs"
	"github.com/danieloza/salonos/internal/observability/metrics"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/slots"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/internal/visits"
	"github.com/danieloza/salonos/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	TenantResolver *tenancy.Resolver

	AvailabilityHandler *availability.Handler
	SlotsHandler        *slots.Handler
	VisitsHandler       *visits.Handler
	ReservationsHandler *reservations.Handler
	ConversionHandler   *conversion.Handler
	ClientsHandler      *clients.Handler
	JobsHandler         *jobs.Handler

	MetricsHandler http.Handler
	Metrics        *metrics.BookingMetrics

	CORSAllowedOrigins []string
	OperatorJWTSecret  string

	// Per-IP burst budget on the public reservation endpoint. Zero disables
	// the limiter.
	PublicBurstPerIP    int
	PublicBurstRatePerS float64
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public booking surface, no staff headers. The tenant comes from the
	// URL and must already exist.
	if cfg.ReservationsHandler != nil {
		r.Route("/public/{tenantSlug}", func(public chi.Router) {
			if cfg.PublicBurstPerIP > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.PublicBurstRatePerS, cfg.PublicBurstPerIP, cfg.Metrics))
			}
			public.Use(tenantFromSlug(cfg.TenantResolver))
			public.Post("/reservations", cfg.ReservationsHandler.PublicCreate)
		})
	}

	// Staff API, tenant and actor from headers.
	r.Route("/api", func(api chi.Router) {
		api.Use(requireTenant(cfg.TenantResolver))

		if cfg.AvailabilityHandler != nil {
			api.Route("/availability", func(r chi.Router) {
				r.Post("/day", cfg.AvailabilityHandler.UpsertDay)
				r.Post("/blocks", cfg.AvailabilityHandler.CreateBlock)
				r.Delete("/blocks/{blockID}", cfg.AvailabilityHandler.DeleteBlock)
				r.Put("/buffers/service/{name}", cfg.AvailabilityHandler.UpsertServiceBuffer)
				r.Put("/buffers/employee/{name}", cfg.AvailabilityHandler.UpsertEmployeeBuffer)
			})
		}

		if cfg.SlotsHandler != nil {
			api.Get("/slots/recommendations", cfg.SlotsHandler.Recommendations)
		}

		if cfg.VisitsHandler != nil {
			api.Route("/visits", func(r chi.Router) {
				r.Get("/", cfg.VisitsHandler.List)
				r.Post("/", cfg.VisitsHandler.Create)
				r.Patch("/{visitID}/status", cfg.VisitsHandler.UpdateStatus)
				r.Get("/{visitID}/history", cfg.VisitsHandler.History)
			})
		}

		if cfg.ReservationsHandler != nil {
			api.Route("/reservations", func(r chi.Router) {
				r.Get("/", cfg.ReservationsHandler.List)
				r.Get("/metrics", cfg.ReservationsHandler.Metrics)
				r.Patch("/{reservationID}/status", cfg.ReservationsHandler.UpdateStatus)
				r.Get("/{reservationID}/history", cfg.ReservationsHandler.History)
				if cfg.ConversionHandler != nil {
					r.Post("/{reservationID}/convert", cfg.ConversionHandler.Convert)
				}
			})
		}

		if cfg.ClientsHandler != nil {
			api.Get("/clients", cfg.ClientsHandler.List)
		}

		if cfg.ConversionHandler != nil {
			api.With(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret)).
				Get("/integrity/conversions", cfg.ConversionHandler.Integrity)
		}
	})

	// Operator surface for the job queue.
	if cfg.JobsHandler != nil {
		r.Route("/ops", func(ops chi.Router) {
			ops.Use(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret))
			ops.Get("/jobs/health", cfg.JobsHandler.Health)
			ops.Post("/jobs/{jobID}/retry", cfg.JobsHandler.RetryDeadLetter)
		})
	}

	return r
}
