package main

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/permission/store"
)

type memoryRepo struct {
	head    *permission.Snapshot
	loadErr error
	saves   int
}

func (m *memoryRepo) Load(context.Context) (*permission.Snapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.head == nil {
		return nil, store.ErrNotFound
	}
	return m.head, nil
}

func (m *memoryRepo) Save(_ context.Context, snap *permission.Snapshot) error {
	m.head = snap
	m.saves++
	return nil
}

func (m *memoryRepo) ListRevisions(context.Context, int) ([]store.RevisionInfo, error) {
	if m.head == nil {
		return nil, nil
	}
	return []store.RevisionInfo{{Revision: m.head.Revision, CommittedBy: m.head.CommittedBy}}, nil
}

func TestSeedPermissions(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}

	seeded, err := seedPermissions(ctx, repo, false)
	require.NoError(t, err)
	require.True(t, seeded)
	require.Equal(t, "seed", repo.head.CommittedBy)
	require.NoError(t, permission.Validate(repo.head.Matrix, permission.Modules()))

	seeded, err = seedPermissions(ctx, repo, false)
	require.NoError(t, err)
	require.False(t, seeded)
	require.Equal(t, 1, repo.saves)

	seeded, err = seedPermissions(ctx, repo, true)
	require.NoError(t, err)
	require.True(t, seeded)
	require.Equal(t, 2, repo.saves)
}

func TestSeedPermissionsLoadError(t *testing.T) {
	boom := errors.New("conn refused")
	_, err := seedPermissions(context.Background(), &memoryRepo{loadErr: boom}, false)
	require.ErrorIs(t, err, boom)
}

func TestSeedPermissionsInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := store.NewCache(client, time.Hour)

	repo := &memoryRepo{head: permission.NewSnapshot(permission.DefaultMatrix(), "old", time.Now())}
	require.NoError(t, c.Put(ctx, repo.head))
	before, err := c.Version(ctx)
	require.NoError(t, err)

	seeded, err := seedPermissions(ctx, store.New(repo, c, nil), true)
	require.NoError(t, err)
	require.True(t, seeded)

	after, err := c.Version(ctx)
	require.NoError(t, err)
	require.Greater(t, after, before)

	cached, err := c.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, repo.head.Revision, cached.Revision)
	require.Equal(t, "seed", cached.CommittedBy)
}
