package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/platform/db"
)

const uniqueViolation = "23505"

// DBTX is the subset of pgx used for queries.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	DBTX
	db.TxBeginner
}

// Repository stores matrix revisions in PostgreSQL.
type Repository struct {
	pool Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool Pool) *Repository {
	return &Repository{pool: pool}
}

const loadHeadSQL = `SELECT r.revision, r.document, r.fingerprint, r.committed_by, r.committed_at
FROM permission_matrix_head h
JOIN permission_matrix_revisions r ON r.revision = h.revision
WHERE h.id = 1`

// Load returns the head revision.
func (r *Repository) Load(ctx context.Context) (*permission.Snapshot, error) {
	var (
		rec snapshotRecord
		doc []byte
	)
	err := r.pool.QueryRow(ctx, loadHeadSQL).Scan(&rec.Revision, &doc, &rec.Fingerprint, &rec.CommittedBy, &rec.CommittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load head: %w", err)
	}
	if err := json.Unmarshal(doc, &rec.Matrix); err != nil {
		return nil, fmt.Errorf("store: decode document %s: %w", rec.Revision, err)
	}
	return rec.snapshot(), nil
}

const insertRevisionSQL = `INSERT INTO permission_matrix_revisions (revision, document, fingerprint, committed_by, committed_at)
VALUES ($1, $2, $3, $4, $5)`

const upsertHeadSQL = `INSERT INTO permission_matrix_head (id, revision, updated_at)
VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at`

// Save appends snap as a new revision and moves the head to it in one transaction.
func (r *Repository) Save(ctx context.Context, snap *permission.Snapshot) error {
	if snap == nil || snap.Matrix == nil {
		return errors.New("store: snapshot required")
	}
	doc, err := json.Marshal(snap.Matrix.Document())
	if err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRevisionSQL, snap.Revision, doc, snap.Fingerprint, snap.CommittedBy, snap.CommittedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrDuplicate
			}
			return fmt.Errorf("store: insert revision: %w", err)
		}
		if _, err := tx.Exec(ctx, upsertHeadSQL, snap.Revision); err != nil {
			return fmt.Errorf("store: move head: %w", err)
		}
		return nil
	})
}

const listRevisionsSQL = `SELECT revision, fingerprint, committed_by, committed_at
FROM permission_matrix_revisions
ORDER BY committed_at DESC
LIMIT $1`

// ListRevisions returns the most recent revisions, newest first.
func (r *Repository) ListRevisions(ctx context.Context, limit int) ([]RevisionInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, listRevisionsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RevisionInfo
	for rows.Next() {
		var info RevisionInfo
		if err := rows.Scan(&info.Revision, &info.Fingerprint, &info.CommittedBy, &info.CommittedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
