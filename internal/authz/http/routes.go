package authzhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/farmdesk/farmdesk/internal/identity"
	"github.com/farmdesk/farmdesk/internal/permission"
)

// MountRoutes registers the permission API. Callers must already be authenticated.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/modules", h.listModules)
	r.Get("/permissions/me", h.getMine)
	r.Get("/permissions/check", h.check)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(permission.ModuleAdmin, permission.ActionView))
		r.Get("/permissions", h.getMatrix)
		r.Get("/permissions/revisions", h.listRevisions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(permission.ModuleAdmin, permission.ActionEdit))
		r.Use(limiter)
		r.Put("/permissions", h.replace)
		r.Post("/permissions/reset", h.reset)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := identity.PrincipalFromContext(r.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID, nil
	}
	return httprate.KeyByIP(r)
}
