package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/iho/jibledger/internal/domain"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// ActorHeader names the caller recorded in the audit trail.
	ActorHeader = "X-Actor-ID"
)

// RequestID reuses an incoming X-Request-ID or generates one, echoes it
// back and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.ContextWithRequestID(r.Context(), id)))
	})
}

// Actor stores the X-Actor-ID header in the request context. Requests
// without one are attributed to the system actor.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(ActorHeader); actor != "" {
			r = r.WithContext(domain.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
