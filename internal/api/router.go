package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-clinic-scheduling/internal/appointment"
	"github.com/hackgods/dental-clinic-scheduling/internal/availability"
	"github.com/hackgods/dental-clinic-scheduling/internal/clinic"
	"github.com/hackgods/dental-clinic-scheduling/internal/report"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Availability *availability.Engine
	Reports      *report.Service
	Catalog      appointment.Catalog
	Clinic       *clinic.Settings
	PgPool       *pgxpool.Pool // nil on the in-memory store
	Redis        *redis.Client // nil without Redis
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Reference data
	r.Get("/clinic/settings", clinicSettingsHandler(cfg.Clinic))
	r.Get("/patients", listPatientsHandler(cfg.Catalog))
	r.Get("/dentists", listDentistsHandler(cfg.Catalog))
	r.Get("/services", listServicesHandler(cfg.Catalog))

	r.Get("/availability", availabilityHandler(cfg.Availability, cfg.Clinic))

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments, cfg.Clinic))
		r.Get("/", listAppointmentsHandler(cfg.Appointments, cfg.Clinic))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments, cfg.Clinic))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments, cfg.Clinic))
		r.Put("/{id}/status", updateStatusHandler(cfg.Appointments, cfg.Clinic))
	})

	r.Get("/reports/summary", reportSummaryHandler(cfg.Reports))

	return r
}
