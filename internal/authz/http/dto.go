package authzhttp

import (
	"time"

	"github.com/farmdesk/farmdesk/internal/permission"
)

type replaceRequest struct {
	Revision string              `json:"revision" validate:"omitempty,uuid"`
	Matrix   permission.Document `json:"matrix" validate:"required"`
}

type resetRequest struct {
	Revision string `json:"revision" validate:"omitempty,uuid"`
}

type checkQuery struct {
	Role   string `validate:"required,max=64"`
	Module string `validate:"required,max=64"`
	Action string `validate:"required,max=16"`
}

type moduleView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type roleView struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type matrixResponse struct {
	Revision    string              `json:"revision"`
	Fingerprint string              `json:"fingerprint"`
	CommittedAt time.Time           `json:"committed_at"`
	CommittedBy string              `json:"committed_by"`
	Roles       []roleView          `json:"roles"`
	Modules     []moduleView        `json:"modules"`
	Matrix      permission.Document `json:"matrix"`
}

type replaceResponse struct {
	matrixResponse
	Previous string              `json:"previous"`
	Changes  []permission.Change `json:"changes"`
	Warning  string              `json:"warning,omitempty"`
}

type meResponse struct {
	UserID  string                           `json:"user_id"`
	Role    string                           `json:"role"`
	Modules map[string]permission.Capability `json:"modules"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func toMatrixResponse(snap *permission.Snapshot, modules []permission.Module) matrixResponse {
	roles := make([]roleView, 0, len(permission.Roles()))
	for _, r := range permission.Roles() {
		roles = append(roles, roleView{Key: string(r), Name: r.DisplayName()})
	}
	return matrixResponse{
		Revision:    snap.Revision.String(),
		Fingerprint: snap.Fingerprint,
		CommittedAt: snap.CommittedAt,
		CommittedBy: snap.CommittedBy,
		Roles:       roles,
		Modules:     toModuleViews(modules),
		Matrix:      snap.Matrix.Document(),
	}
}

func toModuleViews(modules []permission.Module) []moduleView {
	out := make([]moduleView, 0, len(modules))
	for _, m := range modules {
		out = append(out, moduleView{Key: string(m), Label: m.Label()})
	}
	return out
}
