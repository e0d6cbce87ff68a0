package authzhttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/farmdesk/farmdesk/internal/authz"
	"github.com/farmdesk/farmdesk/internal/identity"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/platform/httpx"
	"github.com/farmdesk/farmdesk/internal/rbac"
)

// Handler serves the permission matrix API.
type Handler struct {
	logger    *slog.Logger
	service   *authz.Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *authz.Service, gate rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      gate,
		validator: validator.New(),
	}
}

func (h *Handler) getMatrix(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()
	w.Header().Set("ETag", strconv.Quote(snap.Fingerprint))
	httpx.JSON(w, http.StatusOK, toMatrixResponse(snap, h.service.Modules()))
}

func (h *Handler) getMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := identity.PrincipalFromContext(r.Context())
	modules := make(map[string]permission.Capability)
	if role, ok := permission.ParseRole(principal.Role); ok {
		for mod, c := range h.service.Capabilities(role) {
			modules[string(mod)] = c
		}
	}
	httpx.JSON(w, http.StatusOK, meResponse{UserID: principal.UserID, Role: principal.Role, Modules: modules})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	q := checkQuery{
		Role:   r.URL.Query().Get("role"),
		Module: r.URL.Query().Get("module"),
		Action: r.URL.Query().Get("action"),
	}
	if err := h.validator.Struct(q); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role, module and action are required", fieldErrors(err)...)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: h.service.Authorize(q.Role, q.Module, q.Action)})
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, toModuleViews(h.service.Modules()))
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid replace request", fieldErrors(err)...)
		return
	}
	expected, err := parseRevision(req.Revision)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Replace(r.Context(), authz.ReplaceRequest{
		Expected: expected,
		Matrix:   permission.FromDocument(req.Matrix),
		Actor:    actor(r),
	})
	h.respondReplace(w, result, err)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reset request", fieldErrors(err)...)
		return
	}
	expected, err := parseRevision(req.Revision)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Reset(r.Context(), expected, actor(r))
	h.respondReplace(w, result, err)
}

func (h *Handler) respondReplace(w http.ResponseWriter, result *authz.ReplaceResult, err error) {
	if err != nil {
		if !errors.Is(err, permission.ErrValidation) && !errors.Is(err, permission.ErrStaleRevision) {
			h.logger.Error("replace permission matrix", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	resp := replaceResponse{
		matrixResponse: toMatrixResponse(result.Snapshot, h.service.Modules()),
		Previous:       result.Previous.String(),
		Changes:        result.Changes,
	}
	if resp.Changes == nil {
		resp.Changes = []permission.Change{}
	}
	if result.PersistErr != nil {
		resp.Warning = "permissions updated for this session but could not be saved"
	}
	w.Header().Set("ETag", strconv.Quote(result.Snapshot.Fingerprint))
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listRevisions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	revs, err := h.service.Revisions(r.Context(), limit)
	if err != nil {
		h.logger.Error("list permission revisions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, revs)
}

func parseRevision(raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, nil
	}
	rev, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: revision", httpx.ErrValidation)
	}
	return rev, nil
}

func actor(r *http.Request) string {
	principal, _ := identity.PrincipalFromContext(r.Context())
	if principal.Email != "" {
		return principal.Email
	}
	return principal.UserID
}

func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return out
}
