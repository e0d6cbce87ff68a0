package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmdesk/farmdesk/internal/permission"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("stubRow: unsupported destination")
		}
	}
	return nil
}

type stubTx struct {
	pgx.Tx
	execErrs  []error
	execSQL   []string
	committed bool
}

func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, sql)
	if len(t.execErrs) > 0 {
		err := t.execErrs[0]
		t.execErrs = t.execErrs[1:]
		if err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	return nil
}

type stubPool struct {
	row stubRow
	tx  *stubTx
}

func (p *stubPool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (p *stubPool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *stubPool) QueryRow(context.Context, string, ...any) pgx.Row {
	return p.row
}

func (p *stubPool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return p.tx, nil
}

func TestRepositoryLoadNoRows(t *testing.T) {
	repo := NewRepository(&stubPool{row: stubRow{err: pgx.ErrNoRows}})
	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryLoadDecodesDocument(t *testing.T) {
	m := permission.DefaultMatrix()
	doc, err := json.Marshal(m.Document())
	require.NoError(t, err)
	rev := uuid.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	repo := NewRepository(&stubPool{row: stubRow{values: []any{rev, doc, permission.Fingerprint(m), "owner", at}}})
	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rev, snap.Revision)
	assert.Equal(t, "owner", snap.CommittedBy)
	assert.Equal(t, at, snap.CommittedAt)
	assert.True(t, m.Equal(snap.Matrix))
}

func TestRepositorySaveMovesHead(t *testing.T) {
	tx := &stubTx{}
	repo := NewRepository(&stubPool{tx: tx})
	snap := permission.NewSnapshot(permission.DefaultMatrix(), "owner", time.Now())

	require.NoError(t, repo.Save(context.Background(), snap))
	assert.True(t, tx.committed)
	require.Len(t, tx.execSQL, 2)
	assert.Equal(t, insertRevisionSQL, tx.execSQL[0])
	assert.Equal(t, upsertHeadSQL, tx.execSQL[1])
}

func TestRepositorySaveDuplicateRevision(t *testing.T) {
	tx := &stubTx{execErrs: []error{&pgconn.PgError{Code: uniqueViolation}}}
	repo := NewRepository(&stubPool{tx: tx})
	snap := permission.NewSnapshot(permission.DefaultMatrix(), "owner", time.Now())

	err := repo.Save(context.Background(), snap)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.False(t, tx.committed)
}
