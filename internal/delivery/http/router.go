package http

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"eventadmission/internal/delivery/http/controllers"
	"eventadmission/internal/delivery/http/helpers"
	"eventadmission/internal/delivery/http/middleware"
	"eventadmission/internal/domain"
)

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Events      *controllers.EventController
	AdminEvents *controllers.AdminEventController
	Public      *controllers.PublicEventController
	Requests    *controllers.RequestController
}

// RouterConfig carries the router's plumbing dependencies.
type RouterConfig struct {
	Verifier    domain.TokenVerifier
	Logger      *slog.Logger
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(c Controllers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(cfg.Verifier, cfg.Logger)
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return auth(middleware.RequireRole(domain.RoleAdmin)(h))
	}

	// Events (initiator)
	mux.HandleFunc("POST /events", auth(c.Events.CreateEvent))
	mux.HandleFunc("GET /events", auth(c.Events.ListMyEvents))
	mux.HandleFunc("GET /events/{eventID}", auth(c.Events.GetEvent))
	mux.HandleFunc("PATCH /events/{eventID}", auth(c.Events.UpdateEvent))

	// Participation requests
	mux.HandleFunc("POST /events/{eventID}/requests", auth(c.Requests.CreateRequest))
	mux.HandleFunc("GET /events/{eventID}/requests", auth(c.Requests.ListEventRequests))
	mux.HandleFunc("PATCH /events/{eventID}/requests", auth(c.Requests.ChangeRequestStatus))
	mux.HandleFunc("GET /requests", auth(c.Requests.ListMyRequests))
	mux.HandleFunc("PATCH /requests/{requestID}/cancel", auth(c.Requests.CancelRequest))

	// Admin
	mux.HandleFunc("PATCH /admin/events/{eventID}", admin(c.AdminEvents.UpdateEvent))

	// Public
	mux.HandleFunc("GET /public/events/{eventID}", c.Public.GetEvent)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	var h http.Handler = mux
	h = middleware.CORS(cfg.CORSOrigins, h)
	h = chimw.Recoverer(h)
	h = middleware.LoggingMiddleware(cfg.Logger, h)
	h = chimw.RealIP(h)
	h = chimw.RequestID(h)
	return h
}
