package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-queue-scheduling/pkg/logging"
)

type RouterConfig struct {
	Appointments AppointmentService
	Breaks       BreakService
	Doctors      AvailabilityEditor
	Postgres     Pinger
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Logger       *logging.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/patients", registerPatientHandler(cfg.Appointments))

	// Booking endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Appointments))
	r.Post("/appointments/{id}/status", updateStatusHandler(cfg.Appointments))
	r.Post("/appointments/{id}/skip", skipHandler(cfg.Appointments))
	r.Post("/walk-ins", bookWalkInHandler(cfg.Appointments))

	// Doctor-day endpoints
	r.Route("/doctors/{doctor}", func(r chi.Router) {
		r.Get("/walk-in-estimate", walkInEstimateHandler(cfg.Appointments))
		r.Get("/days/{date}", dayLedgerHandler(cfg.Appointments))
		r.Get("/days/{date}/board", boardHandler(cfg.Appointments))
		r.Put("/availability", updateAvailabilityHandler(cfg.Doctors))

		r.Post("/breaks/proposals", proposeBreakHandler(cfg.Breaks))
		r.Post("/breaks", confirmBreakHandler(cfg.Breaks))
		r.Delete("/breaks/{date}/{start}", cancelBreakHandler(cfg.Breaks))
	})

	return r
}
