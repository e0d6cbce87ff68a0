package authzhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmdesk/farmdesk/internal/authz"
	"github.com/farmdesk/farmdesk/internal/identity"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/rbac"
	_ "github.com/farmdesk/farmdesk/testing"
)

func newTestRouter(t *testing.T) (*authz.Service, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := authz.NewService(authz.Options{Logger: logger})
	require.NoError(t, err)

	h := NewHandler(logger, svc, rbac.Middleware{Authorizer: svc, Logger: logger})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := identity.Principal{UserID: req.Header.Get("X-User"), Email: req.Header.Get("X-User") + "@farm.test", Role: req.Header.Get("X-Role")}
			next.ServeHTTP(w, req.WithContext(identity.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api", h.MountRoutes)
	return svc, r
}

func do(t *testing.T, h http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User", "u-"+role)
	req.Header.Set("X-Role", role)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGetMatrixRequiresAdminView(t *testing.T) {
	svc, h := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/api/permissions", "Farm Manager", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/permissions", "Admin", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `"`+svc.Snapshot().Fingerprint+`"`, rr.Header().Get("ETag"))

	var resp matrixResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, svc.Snapshot().Revision.String(), resp.Revision)
	assert.Len(t, resp.Roles, len(permission.Roles()))
	assert.Len(t, resp.Modules, len(permission.Modules()))
	assert.Equal(t, permission.CreateEditView, resp.Matrix["Worker"]["production"])
}

func TestCheckEndpoint(t *testing.T) {
	_, h := newTestRouter(t)

	cases := []struct {
		query string
		want  bool
	}{
		{"role=Worker&module=production&action=create", true},
		{"role=Worker&module=production&action=delete", false},
		{"role=Farm%20Manager&module=admin&action=view", false},
		{"role=NotARole&module=sales&action=view", false},
		{"role=Admin&module=payroll&action=view", false},
		{"role=Admin&module=sales&action=approve", false},
	}
	for _, tc := range cases {
		rr := do(t, h, http.MethodGet, "/api/permissions/check?"+tc.query, "Worker", nil)
		require.Equal(t, http.StatusOK, rr.Code, tc.query)
		var resp checkResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, tc.want, resp.Allowed, tc.query)
	}

	rr := do(t, h, http.MethodGet, "/api/permissions/check?role=Admin", "Worker", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMeReturnsCallerRow(t *testing.T) {
	_, h := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/api/permissions/me", "Accountant", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp meResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Accountant", resp.Role)
	assert.Equal(t, permission.NoAccess, resp.Modules["hr"])
	assert.Equal(t, permission.AllAccess, resp.Modules["accounting"])

	rr = do(t, h, http.MethodGet, "/api/permissions/me", "Visitor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Modules)
}

func TestReplaceCommitsMatrix(t *testing.T) {
	svc, h := newTestRouter(t)
	before := svc.Snapshot()

	doc := before.Matrix.Document()
	doc["Sales"]["accounting"] = permission.ReadOnly
	rr := do(t, h, http.MethodPut, "/api/permissions", "Admin", map[string]any{
		"revision": before.Revision.String(),
		"matrix":   doc,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp replaceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, before.Revision.String(), resp.Previous)
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, permission.RoleSales, resp.Changes[0].Role)
	assert.Empty(t, resp.Warning)
	assert.True(t, svc.Authorize("Sales", "accounting", "view"))

	rr = do(t, h, http.MethodPut, "/api/permissions", "Admin", map[string]any{
		"revision": before.Revision.String(),
		"matrix":   doc,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestReplaceRejectsIncompleteMatrix(t *testing.T) {
	svc, h := newTestRouter(t)
	before := svc.Snapshot()

	doc := before.Matrix.Document()
	delete(doc["Worker"], "production")
	doc["Sales"]["accounting"] = permission.AllAccess
	rr := do(t, h, http.MethodPut, "/api/permissions", "Admin", map[string]any{"matrix": doc})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "missing Worker/production")
	assert.Same(t, before, svc.Snapshot())

	rr = do(t, h, http.MethodPut, "/api/permissions", "Admin", map[string]any{"revision": "nope", "matrix": doc})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/permissions", "Admin", map[string]any{"revision": before.Revision.String()})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReplaceRequiresAdminEdit(t *testing.T) {
	_, h := newTestRouter(t)
	doc := permission.DefaultMatrix().Document()

	rr := do(t, h, http.MethodPut, "/api/permissions", "Farm Manager", map[string]any{"matrix": doc})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/permissions/reset", "Worker", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestResetRestoresDefaults(t *testing.T) {
	svc, h := newTestRouter(t)

	d := svc.Snapshot().Matrix.Draft()
	d.Set(permission.RoleWorker, permission.ModuleSales, permission.AllAccess)
	_, err := svc.Replace(t.Context(), authz.ReplaceRequest{Matrix: d.Matrix(), Actor: "seed"})
	require.NoError(t, err)
	require.True(t, svc.Authorize("Worker", "sales", "delete"))

	rr := do(t, h, http.MethodPost, "/api/permissions/reset", "Admin", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.False(t, svc.Authorize("Worker", "sales", "delete"))
	assert.Equal(t, "u-Admin@farm.test", svc.Snapshot().CommittedBy)
}

func TestListModulesAndRevisions(t *testing.T) {
	_, h := newTestRouter(t)

	rr := do(t, h, http.MethodGet, "/api/modules", "Worker", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var mods []moduleView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mods))
	require.Len(t, mods, len(permission.Modules()))
	assert.Equal(t, moduleView{Key: "dashboard", Label: "Dashboard"}, mods[0])

	rr = do(t, h, http.MethodGet, "/api/permissions/revisions", "Admin", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}
