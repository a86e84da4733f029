// Package server assembles the custody service's HTTP router and gRPC server.
package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"cheque-custody/backend/internal/server/middleware"
	"cheque-custody/backend/internal/server/respond"
	"cheque-custody/backend/internal/telemetry/producer"
	"cheque-custody/backend/internal/throttle"
)

// HealthPath is served without authentication and outside the throttle.
const HealthPath = "/healthz"

// RouteRegistrar mounts a handler's routes. Every */handler.Handler implements it.
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// Deps are the collaborators of the HTTP router.
type Deps struct {
	// Tokens validates bearer tokens.
	Tokens middleware.TokenValidator
	// Throttle admits API requests. If nil, requests are not throttled.
	Throttle *throttle.Throttle
	// Events receives one http.request event per request. If nil, none are emitted.
	Events producer.Producer
	// Health answers GET /healthz.
	Health http.Handler
	// Public reports requests served without a token, besides /healthz.
	Public []func(*http.Request) bool
	// Handlers are mounted in order.
	Handlers []RouteRegistrar
}

// NewRouter returns the API router. Middleware runs in the order: request log,
// request events, authentication, throttle.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	if deps.Health != nil {
		r.Handle(HealthPath, deps.Health).Methods(http.MethodGet)
	}

	api := r.NewRoute().Subrouter()
	for _, h := range deps.Handlers {
		h.RegisterRoutes(api)
	}

	public := func(req *http.Request) bool {
		for _, p := range deps.Public {
			if p(req) {
				return true
			}
		}
		return false
	}
	api.Use(middleware.RequestLog)
	api.Use(middleware.RequestEvents(deps.Events, map[string]bool{HealthPath: true}))
	api.Use(middleware.Auth(deps.Tokens, public))
	if deps.Throttle != nil {
		api.Use(middleware.Throttle(deps.Throttle))
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respond.JSON(w, http.StatusNotFound, respond.ErrorBody{Code: "NOT_FOUND", Message: "no such route"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respond.JSON(w, http.StatusMethodNotAllowed, respond.ErrorBody{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})
	return r
}
