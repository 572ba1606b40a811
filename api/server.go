/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontends
  5. Actor:      Gateway-verified identity extraction (see actor.go)

SECURITY NOTE:
  Token verification happens upstream; this server trusts the X-Actor-*
  headers and must only be reachable through the gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id", "X-Actor-Admin"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(ActorMiddleware)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Delete("/{id}", h.DeleteUser)
			r.Get("/{id}/policies", h.ListUserPolicies)
			r.Get("/{id}/entitlements", h.ListUserEntitlements)
			r.Get("/{id}/claims", h.ListUserClaims)
		})

		// Policy catalog routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Put("/{id}", h.UpdatePolicy)
			r.Delete("/{id}", h.DeletePolicy)
		})

		// Purchase routes
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.Purchase)
			r.Delete("/{policyID}", h.WithdrawPurchase)
		})

		// Claim routes
		r.Route("/claims", func(r chi.Router) {
			r.Post("/", h.SubmitClaim)
			r.Get("/", h.ListAllClaims)
			r.Get("/{id}", h.GetClaim)
			r.Put("/{id}", h.UpdateClaimAmount)
			r.Put("/{id}/status", h.SetClaimStatus)
			r.Delete("/{id}", h.DeleteClaim)
		})
	})

	return r
}
