// Package rbac gates HTTP routes on the committed permission matrix.
package rbac

import (
	"log/slog"
	"net/http"

	"github.com/farmdesk/farmdesk/internal/identity"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/platform/httpx"
)

// Authorizer answers authorization queries; *authz.Service implements it.
type Authorizer interface {
	Can(role permission.Role, module permission.Module, action permission.Action) bool
}

// Middleware wires authorization checks for HTTP handlers. It expects
// identity.Middleware to have run first.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// Require ensures the caller's role may perform action on module.
func (m Middleware) Require(module permission.Module, action permission.Action) func(http.Handler) http.Handler {
	return m.RequireAny(module, action)
}

// RequireAny ensures the caller's role holds at least one of actions on module.
func (m Middleware) RequireAny(module permission.Module, actions ...permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.allowed(r, module, actions) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions for "+string(module))
		})
	}
}

// RequireAll ensures the caller's role holds every one of actions on module.
func (m Middleware) RequireAll(module permission.Module, actions ...permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, action := range actions {
				if !m.allowed(r, module, []permission.Action{action}) {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions for "+string(module))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) allowed(r *http.Request, module permission.Module, actions []permission.Action) bool {
	if m.Authorizer == nil || len(actions) == 0 {
		return false
	}
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		return false
	}
	role, ok := permission.ParseRole(principal.Role)
	if !ok {
		if m.Logger != nil {
			m.Logger.Warn("rbac unknown role", slog.String("role", principal.Role), slog.String("user", principal.UserID))
		}
		return false
	}
	for _, action := range actions {
		if m.Authorizer.Can(role, module, action) {
			return true
		}
	}
	return false
}
