package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/mailflow/internal/adapter/otel"
	"github.com/Strob0t/mailflow/internal/middleware"
	"github.com/Strob0t/mailflow/internal/service"
)

// NewRouter returns a chi router with the middleware stack shared by all
// services. serviceName names the server spans.
func NewRouter(serviceName string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(serviceName))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	})
	return r
}

// MountClassifierRoutes registers the classifier endpoints.
func MountClassifierRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", Health(AgentClassifier))
	r.Get("/ready", Ready(AgentClassifier, h.Checks))
	r.Post("/classify", h.Classify)
}

// MountRouterRoutes registers the router endpoints.
func MountRouterRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", Health(AgentRouter))
	r.Get("/ready", Ready(AgentRouter, h.Checks))
	r.Post("/route", h.Route)
}

// MountHandlerRoutes registers the placeholder workflow handlers.
func MountHandlerRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", Health(AgentHandlers))
	r.Get("/ready", Ready(AgentHandlers, h.Checks))
	for _, wf := range service.Workflows() {
		r.Post(wf.Path, h.Workflow(wf))
	}
}
