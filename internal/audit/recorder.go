// Package audit records administrative changes in audit_logs.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/farmdesk/farmdesk/internal/permission"
)

// Entry is a record stored in audit_logs.
type Entry struct {
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Recorder writes entries into audit_logs.
type Recorder struct {
	db Execer
}

// NewRecorder returns a Recorder.
func NewRecorder(db Execer) *Recorder {
	return &Recorder{db: db}
}

// Record persists the entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit recorder not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		entry.Actor, entry.Action, entry.Entity, entry.EntityID, metaJSON, at)
	return err
}

// Actions recorded for the permission matrix.
const (
	ActionMatrixReplaced = "permissions.replace"
	ActionMatrixReset    = "permissions.reset"
	EntityMatrix         = "permission_matrix"
)

// MatrixChange builds the audit entry for a committed matrix.
func MatrixChange(action string, snap *permission.Snapshot, previous string, changes []permission.Change) Entry {
	cells := make([]map[string]string, 0, len(changes))
	for _, c := range changes {
		cells = append(cells, map[string]string{
			"role":   string(c.Role),
			"module": string(c.Module),
			"from":   c.From.String(),
			"to":     c.To.String(),
		})
	}
	return Entry{
		Actor:    snap.CommittedBy,
		Action:   action,
		Entity:   EntityMatrix,
		EntityID: snap.Revision.String(),
		Meta: map[string]any{
			"previous":    previous,
			"fingerprint": snap.Fingerprint,
			"changes":     cells,
		},
		At: snap.CommittedAt,
	}
}
