// Package store persists committed permission matrices in PostgreSQL and keeps a
// versioned snapshot in Redis so that every instance converges on the same policy.
package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/farmdesk/farmdesk/internal/permission"
)

var (
	// ErrNotFound indicates nothing has been persisted yet.
	ErrNotFound = errors.New("store: matrix not found")
	// ErrDuplicate indicates the revision was already persisted.
	ErrDuplicate = errors.New("store: duplicate revision")
	// ErrCacheMiss indicates the snapshot cache holds no entry for the current version.
	ErrCacheMiss = errors.New("store: cache miss")
)

// RevisionInfo summarises a persisted revision without its document.
type RevisionInfo struct {
	Revision    uuid.UUID `json:"revision"`
	Fingerprint string    `json:"fingerprint"`
	CommittedBy string    `json:"committed_by"`
	CommittedAt time.Time `json:"committed_at"`
}

type snapshotRecord struct {
	Revision    uuid.UUID           `json:"revision"`
	Fingerprint string              `json:"fingerprint"`
	CommittedBy string              `json:"committed_by"`
	CommittedAt time.Time           `json:"committed_at"`
	Matrix      permission.Document `json:"matrix"`
}

func encodeSnapshot(snap *permission.Snapshot) ([]byte, error) {
	if snap == nil || snap.Matrix == nil {
		return nil, errors.New("store: snapshot required")
	}
	return json.Marshal(snapshotRecord{
		Revision:    snap.Revision,
		Fingerprint: snap.Fingerprint,
		CommittedBy: snap.CommittedBy,
		CommittedAt: snap.CommittedAt,
		Matrix:      snap.Matrix.Document(),
	})
}

func decodeSnapshot(raw []byte) (*permission.Snapshot, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec.snapshot(), nil
}

func (r snapshotRecord) snapshot() *permission.Snapshot {
	return &permission.Snapshot{
		Matrix:      permission.FromDocument(r.Matrix),
		Revision:    r.Revision,
		Fingerprint: r.Fingerprint,
		CommittedBy: r.CommittedBy,
		CommittedAt: r.CommittedAt,
	}
}
