package rbac

import (
	"log/slog"
	"net/http"

	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/httpx"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Policy *Policy
	Logger *slog.Logger
}

// RequireActor rejects requests without a signed-in actor.
func (m Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.ActorFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current actor's role allows at least one of ops.
func (m Middleware) RequireAny(ops ...Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			for _, op := range ops {
				if m.Policy.Allowed(actor.Role, op) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.String("actor", actor.ID),
					slog.String("role", actor.Role),
					slog.String("path", r.URL.Path),
				)
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}
