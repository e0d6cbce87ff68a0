package identity

import (
	"log/slog"
	"net/http"

	"github.com/farmdesk/farmdesk/internal/platform/httpx"
)

// Middleware authenticates requests with bearer tokens.
type Middleware struct {
	Tokens *Tokens
	Logger *slog.Logger
}

// Authenticate rejects requests without a valid token and stores the principal
// on the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		principal, err := m.Tokens.Parse(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("rejected bearer token", slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}
