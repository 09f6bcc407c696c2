// Package router assembles the HTTP surface: public health and metrics,
// and the JWT-protected /ops API the dashboard talks to.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zaltech/callops/internal/appointments"
	"github.com/zaltech/callops/internal/calls"
	httpmiddleware "github.com/zaltech/callops/internal/http/middleware"
	"github.com/zaltech/callops/internal/leads"
	"github.com/zaltech/callops/internal/services"
	"github.com/zaltech/callops/internal/stats"
	"github.com/zaltech/callops/internal/stream"
	"github.com/zaltech/callops/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	CallsHandler        *calls.Handler
	LeadsHandler        *leads.Handler
	AppointmentsHandler *appointments.Handler
	ServicesHandler     *services.Handler
	StatsHandler        *stats.Handler
	StreamHub           *stream.Hub
	MetricsHandler      http.Handler
	OperatorJWTSecret   string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
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

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Operator API (protected)
	r.Route("/ops", func(ops chi.Router) {
		ops.Use(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret))

		if cfg.CallsHandler != nil {
			ops.Route("/calls", func(r chi.Router) {
				r.Get("/", cfg.CallsHandler.ListHistory)
				r.Get("/live", cfg.CallsHandler.ListLive)
				r.Get("/recent", cfg.CallsHandler.ListRecent)
				r.Get("/{callID}", cfg.CallsHandler.GetCall)
				r.Post("/{callID}/summary-email", cfg.CallsHandler.SendSummaryEmail)
			})
		}

		if cfg.StreamHub != nil {
			ops.Get("/ws/calls/{callID}", cfg.StreamHub.HandleCallSocket)
		}

		if cfg.LeadsHandler != nil {
			ops.Route("/leads", func(r chi.Router) {
				r.Get("/", cfg.LeadsHandler.ListLeads)
				r.Post("/", cfg.LeadsHandler.CreateLead)
				r.Get("/{leadID}", cfg.LeadsHandler.GetLead)
				r.Patch("/{leadID}/status", cfg.LeadsHandler.UpdateLeadStatus)
			})
		}

		if cfg.AppointmentsHandler != nil {
			ops.Route("/appointments", func(r chi.Router) {
				r.Get("/", cfg.AppointmentsHandler.ListAppointments)
				r.Post("/", cfg.AppointmentsHandler.CreateAppointment)
				r.Get("/calendar", cfg.AppointmentsHandler.Calendar)
				r.Get("/stats", cfg.AppointmentsHandler.GetStats)
				r.Get("/{appointmentID}", cfg.AppointmentsHandler.GetAppointment)
				r.Patch("/{appointmentID}", cfg.AppointmentsHandler.UpdateAppointment)
				r.Delete("/{appointmentID}", cfg.AppointmentsHandler.CancelAppointment)
			})
		}

		if cfg.ServicesHandler != nil {
			ops.Route("/services", func(r chi.Router) {
				r.Get("/", cfg.ServicesHandler.ListServices)
				r.Post("/", cfg.ServicesHandler.CreateService)
				r.Put("/{serviceID}", cfg.ServicesHandler.UpdateService)
				r.Delete("/{serviceID}", cfg.ServicesHandler.DeactivateService)
			})
		}

		if cfg.StatsHandler != nil {
			ops.Get("/stats", cfg.StatsHandler.GetStats)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
