/*
actor.go - Actor identity extraction

PURPOSE:
  The engine sits behind an authenticating gateway that verifies tokens and
  forwards the caller identity in trusted headers. This middleware lifts
  that identity into the request context as a ledger.Actor; the core never
  sees or verifies credentials.

HEADERS:
  X-Actor-Id:     verified user id of the caller
  X-Actor-Admin:  "true" when the caller holds the admin capability

Requests with no X-Actor-Id are rejected with 401 before any handler runs.
Authorization decisions (ownership, admin-only operations) stay inside the
domain packages; this layer only transports identity.
*/
package api

import (
	"context"
	"net/http"

	"github.com/coverline/claims-engine/ledger"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorMiddleware lifts the gateway-verified identity headers into the
// request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Actor-Id")
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Missing actor identity", nil)
			return
		}

		actor := ledger.Actor{
			UserID:  ledger.UserID(id),
			IsAdmin: r.Header.Get("X-Actor-Admin") == "true",
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the actor set by ActorMiddleware.
func actorFrom(r *http.Request) ledger.Actor {
	actor, _ := r.Context().Value(actorKey).(ledger.Actor)
	return actor
}
